// Package rpc implements the control-plane and activity-sink clients: a
// gRPC transport realized over a hand-registered JSON codec (see codec.go),
// the wire message shapes for Policy/Command/ActivityReply, and the
// signature-verification scheme that guards every incoming Policy and
// Command payload.
package rpc

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
)

// canonicalBuilder assembles the canonical signing payload: newline-joined
// "key=value" lines in a fixed field order, trailing newline, UTF-8
// encoded. Both the producer (the control plane) and the consumer
// (verifySignature) must build byte-identical output for the same logical
// message, which is why every value type has exactly one encoding rule
// here.
type canonicalBuilder struct {
	lines []string
}

func newCanonicalBuilder() *canonicalBuilder {
	return &canonicalBuilder{}
}

// Str appends key=base64(UTF-8(value)). A missing value (empty string) is
// still encoded: base64 of the empty string is itself the empty string,
// so the line reads "key=".
func (b *canonicalBuilder) Str(key, value string) *canonicalBuilder {
	b.lines = append(b.lines, key+"="+base64.StdEncoding.EncodeToString([]byte(value)))
	return b
}

// Int appends key=<decimal ASCII>.
func (b *canonicalBuilder) Int(key string, value int64) *canonicalBuilder {
	b.lines = append(b.lines, key+"="+strconv.FormatInt(value, 10))
	return b
}

// Bool appends key=1 or key=0.
func (b *canonicalBuilder) Bool(key string, value bool) *canonicalBuilder {
	v := "0"
	if value {
		v = "1"
	}
	b.lines = append(b.lines, key+"="+v)
	return b
}

// F32Bits appends key_f32bits=<decimal of the IEEE-754 single-precision bit
// pattern>. Text round-tripping of floats differs across runtimes;
// comparing the 32-bit pattern is portable.
func (b *canonicalBuilder) F32Bits(key string, value float64) *canonicalBuilder {
	bits := math.Float32bits(float32(value))
	b.lines = append(b.lines, key+"_f32bits="+strconv.FormatUint(uint64(bits), 10))
	return b
}

// Repeated appends "{field}_count=N" followed by "{field}_{i}=base64(...)"
// for each item in index order.
func (b *canonicalBuilder) Repeated(field string, values []string) *canonicalBuilder {
	b.lines = append(b.lines, field+"_count="+strconv.Itoa(len(values)))
	for i, v := range values {
		b.Str(field+"_"+strconv.Itoa(i), v)
	}
	return b
}

// Build returns the newline-joined payload with a trailing newline.
func (b *canonicalBuilder) Build() string {
	return strings.Join(b.lines, "\n") + "\n"
}
