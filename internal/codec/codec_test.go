package codec

import (
	"testing"

	"github.com/podcastindex/podping-gateway/internal/podping"
)

func TestWriteRequestRoundTrip(t *testing.T) {
	in := WriteRequest{IRI: "https://a.example/rss", Reason: podping.ReasonLive, Medium: podping.MediumVideoL}
	out, err := UnmarshalWriteRequest(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestWriteErrorRoundTrip(t *testing.T) {
	in := WriteError{
		HasRequest:   true,
		Request:      WriteRequest{IRI: "https://b.example/rss", Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast},
		ErrorMessage: "duplicate",
	}
	out, err := UnmarshalWriteError(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.HasRequest != in.HasRequest || out.Request != in.Request || out.ErrorMessage != in.ErrorMessage {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestWriteErrorNoRequestRoundTrip(t *testing.T) {
	in := WriteError{HasRequest: false, ErrorMessage: "transport down"}
	out, err := UnmarshalWriteError(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.HasRequest || out.ErrorMessage != in.ErrorMessage {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestHiveTransactionRoundTrip(t *testing.T) {
	in := HiveTransaction{
		HiveTxID:     "abc123",
		HiveBlockNum: 42,
		Podpings: []PodpingWritten{
			{IRIs: []string{"https://a.example/rss", "https://b.example/rss"}, Medium: "podcast", Reason: "update"},
			{IRIs: []string{"https://c.example/rss"}, Medium: "videol", Reason: "live"},
		},
	}
	out, err := UnmarshalHiveTransaction(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.HiveTxID != in.HiveTxID || out.HiveBlockNum != in.HiveBlockNum || len(out.Podpings) != len(in.Podpings) {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
	for i := range in.Podpings {
		if len(out.Podpings[i].IRIs) != len(in.Podpings[i].IRIs) {
			t.Fatalf("podping %d iri count mismatch", i)
		}
		for j := range in.Podpings[i].IRIs {
			if out.Podpings[i].IRIs[j] != in.Podpings[i].IRIs[j] {
				t.Fatalf("podping %d iri %d mismatch: got %q want %q", i, j, out.Podpings[i].IRIs[j], in.Podpings[i].IRIs[j])
			}
		}
		if out.Podpings[i].Medium != in.Podpings[i].Medium || out.Podpings[i].Reason != in.Podpings[i].Reason {
			t.Fatalf("podping %d medium/reason mismatch", i)
		}
	}
}

func TestHiveTransactionZeroBlockNum(t *testing.T) {
	in := HiveTransaction{HiveTxID: "pending", HiveBlockNum: 0}
	out, err := UnmarshalHiveTransaction(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.HiveBlockNum != 0 {
		t.Fatalf("expected zero block num, got %d", out.HiveBlockNum)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	req := WriteRequest{IRI: "https://a.example/rss", Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}
	wire := EncodeWriteRequestEnvelope(req)

	env, err := UnmarshalEnvelope(wire)
	if err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.TypeName != TypeWriteRequest {
		t.Fatalf("unexpected type name %q", env.TypeName)
	}
	out, err := UnmarshalWriteRequest(env.Payload)
	if err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out != req {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, req)
	}
}

func TestEnvelopeUnknownTypeName(t *testing.T) {
	env := Envelope{TypeName: "org.example.Bogus", Payload: []byte("x")}
	if _, err := UnmarshalEnvelope(env.Marshal()); err == nil {
		t.Fatal("expected error for unknown type name")
	}
}

func TestEnvelopeMalformedFrame(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte{0, 0, 0, 200}); err == nil {
		t.Fatal("expected malformed frame error on truncated input")
	}
}

func TestUnmarshalWriteRequestOutOfRangeEnum(t *testing.T) {
	req := WriteRequest{IRI: "https://a.example/rss", Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}
	buf := req.Marshal()
	// Corrupt the reason ordinal (last 4 bytes are reason(2)+medium(2)) to an
	// out-of-range value.
	buf[len(buf)-4] = 0xFF
	buf[len(buf)-3] = 0xFF
	if _, err := UnmarshalWriteRequest(buf); err != ErrOutOfRangeEnum {
		t.Fatalf("expected ErrOutOfRangeEnum, got %v", err)
	}
}

func TestReasonMediumTextCaseInsensitive(t *testing.T) {
	if podping.ParseReason("LIVE") != podping.ReasonLive {
		t.Fatal("expected case-insensitive reason parse")
	}
	if podping.ParseReason("unknown-value") != podping.ReasonUpdate {
		t.Fatal("expected unrecognised reason to default to update")
	}
	if podping.ParseMedium("VideoL") != podping.MediumVideoL {
		t.Fatal("expected case-insensitive medium parse")
	}
	if podping.ParseMedium("nonsense") != podping.MediumPodcast {
		t.Fatal("expected unrecognised medium to default to podcast")
	}
	if podping.ReasonLive.String() != "live" {
		t.Fatalf("expected canonical lower-case encode, got %q", podping.ReasonLive.String())
	}
}
