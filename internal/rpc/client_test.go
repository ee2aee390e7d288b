package rpc

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestJSONCodecIsRegistered(t *testing.T) {
	codec := encoding.GetCodec(jsonCodecName)
	if codec == nil {
		t.Fatal("json codec is not registered")
	}
	if codec.Name() != jsonCodecName {
		t.Errorf("codec.Name() = %q, want %q", codec.Name(), jsonCodecName)
	}

	type sample struct {
		Foo string `json:"foo"`
	}
	in := sample{Foo: "bar"}
	b, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out sample
	if err := codec.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestAgentManagementClientDialIsLazy(t *testing.T) {
	c := NewAgentManagementClient("127.0.0.1:0", 7, "0.1.0")
	defer c.Close()
	if c.conn != nil {
		t.Error("connection should not be established until first use")
	}
}

func TestActivityClientDialIsLazy(t *testing.T) {
	c := NewActivityClient("127.0.0.1:0")
	defer c.Close()
	if c.conn != nil {
		t.Error("connection should not be established until first use")
	}
}
