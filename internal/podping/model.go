// Package podping holds the domain types shared across the gateway: the
// notification ("ping") business identity, its reason/medium enums, and the
// persisted queue row shape.
package podping

import "strings"

// Reason is why a notification was sent. Ordinals are normative on the wire
// (see internal/codec) and must not be renumbered.
type Reason uint16

const (
	ReasonUpdate Reason = iota
	ReasonLive
	ReasonLiveEnd
	ReasonNewIRI
)

// reasonNames is ordered by ordinal; index i is ReasonNames for Reason(i).
var reasonNames = [...]string{"update", "live", "liveend", "newiri"}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return reasonNames[ReasonUpdate]
}

// ParseReason is case-insensitive; an unrecognised value maps to ReasonUpdate,
// matching the contract that unrecognised textual enums default rather than
// error.
func ParseReason(s string) Reason {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range reasonNames {
		if name == s {
			return Reason(i)
		}
	}
	return ReasonUpdate
}

// ReasonPriority ranks a reason for forwarder batch ordering: higher value
// sends first. LiveEnd > Live > NewIRI > Update, per the REDESIGN FLAG
// replacing the original's accidental text-ascending sort.
func ReasonPriority(r Reason) int {
	switch r {
	case ReasonLiveEnd:
		return 3
	case ReasonLive:
		return 2
	case ReasonNewIRI:
		return 1
	default:
		return 0
	}
}

// Medium is the kind of feed a notification concerns. Ordinals are normative
// on the wire and follow declaration order starting at 0.
type Medium uint16

const (
	MediumPodcast Medium = iota
	MediumPodcastL
	MediumMusic
	MediumMusicL
	MediumVideo
	MediumVideoL
	MediumFilm
	MediumFilmL
	MediumAudiobook
	MediumAudiobookL
	MediumNewsletter
	MediumNewsletterL
	MediumBlog
	MediumBlogL
	MediumPublisher
	MediumPublisherL
	MediumCourse
	MediumCourseL
)

var mediumNames = [...]string{
	"podcast", "podcastl",
	"music", "musicl",
	"video", "videol",
	"film", "filml",
	"audiobook", "audiobookl",
	"newsletter", "newsletterl",
	"blog", "blogl",
	"publisher", "publisherl",
	"course", "coursel",
}

func (m Medium) String() string {
	if int(m) < len(mediumNames) {
		return mediumNames[m]
	}
	return mediumNames[MediumPodcast]
}

// ParseMedium is case-insensitive; an unrecognised value maps to
// MediumPodcast.
func ParseMedium(s string) Medium {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range mediumNames {
		if name == s {
			return Medium(i)
		}
	}
	return MediumPodcast
}

// MaxReasonOrdinal and MaxMediumOrdinal bound what the codec accepts on
// decode; anything beyond is OutOfRangeEnum.
const (
	MaxReasonOrdinal = uint16(ReasonNewIRI)
	MaxMediumOrdinal = uint16(MediumCourseL)
)

// Notification is the immutable business identity of a podping: a feed URL,
// its creation time, and why/what kind it concerns.
type Notification struct {
	URL       string
	EpochSecs int64
	Reason    Reason
	Medium    Medium
}

// InsertOutcome reports what the Queue Store did with a submitted
// Notification.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Upserted
	DuplicateRejected
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Upserted:
		return "upserted"
	case DuplicateRejected:
		return "duplicate_rejected"
	default:
		return "unknown"
	}
}

// QueueRow is the persisted shape of a Notification plus its delivery state.
type QueueRow struct {
	Notification
	Inflight bool
}
