package codec

import (
	"errors"
	"testing"
	"testing/quick"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestPlainText_RoundTrip(t *testing.T) {
	c := PlainText{}
	roundTrip := func(m string) bool {
		if !utf8.ValidString(m) {
			return true
		}
		data, err := c.Encode(m)
		if err != nil {
			return false
		}
		got, err := c.Decode(data)
		return err == nil && got == m
	}
	if err := quick.Check(roundTrip, nil); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}

	for _, m := range []string{"", "hello", "zażółć gęślą jaźń", "日本語", "emoji \U0001F600"} {
		if !roundTrip(m) {
			t.Fatalf("round trip failed for %q", m)
		}
	}
}

func TestPlainText_RejectsInvalidUTF8(t *testing.T) {
	c := PlainText{}

	_, err := c.Decode([]byte{0xff, 0xfe})
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("Decode error = %v, want ErrInvalidUTF8", err)
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Op != "decode" {
		t.Fatalf("Decode error = %#v, want *Error with Op decode", err)
	}

	if _, err := c.Encode(string([]byte{0xc3})); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("Encode error = %v, want ErrInvalidUTF8", err)
	}
}

func TestBytes_DecodeCopies(t *testing.T) {
	in := []byte("abc")
	out, err := Bytes{}.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	in[0] = 'z'
	if string(out) != "abc" {
		t.Fatalf("Decode result aliases input: %q", out)
	}
}

type chatLine struct {
	From string `json:"from"`
	Body string `json:"body"`
}

func TestJSON_EncodeDecode(t *testing.T) {
	c := JSON[chatLine]{}
	data, err := c.Encode(chatLine{From: "mark", Body: "hi"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"from":"mark","body":"hi"}` {
		t.Fatalf("Encode = %s", data)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != (chatLine{From: "mark", Body: "hi"}) {
		t.Fatalf("Decode = %+v", got)
	}
}

func TestJSON_DecodeErrors(t *testing.T) {
	if _, err := (JSON[chatLine]{}).Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}

	strict := JSON[chatLine]{DisallowUnknownFields: true}
	if _, err := strict.Decode([]byte(`{"from":"a","extra":1}`)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestJSON_EncodeError(t *testing.T) {
	_, err := (JSON[any]{}).Encode(func() {})
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Codec != "json" || cerr.Op != "encode" {
		t.Fatalf("Encode error = %v, want json encode error", err)
	}
}

func TestProto_EncodeDecode(t *testing.T) {
	c := NewProto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })

	data, err := c.Encode(wrapperspb.String("general"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !proto.Equal(got, wrapperspb.String("general")) {
		t.Fatalf("Decode = %v", got)
	}

	if _, err := c.Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected error for malformed protobuf")
	}
}

func TestFuncAdapters(t *testing.T) {
	enc := EncoderFunc[int](func(n int) ([]byte, error) { return []byte{byte(n)}, nil })
	dec := DecoderFunc[int](func(b []byte) (int, error) { return int(b[0]), nil })
	c := Join[int](enc, dec)

	data, err := c.Encode(7)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := c.Decode(data)
	if err != nil || n != 7 {
		t.Fatalf("Decode = %d, %v; want 7, nil", n, err)
	}
}
