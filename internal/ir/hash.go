package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "campuscloset/invocation/v1"
	DomainEffect     = "campuscloset/effect/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID for a dispatched action.
// The ID is stable given the same flow token, action, params and seq.
func InvocationID(flowToken string, action ActionRef, args IRObject, seq int64) (string, error) {
	obj := IRObject{
		"flow_token": IRString(flowToken),
		"action_uri": IRString(action),
		"args":       args,
		"seq":        IRInt(seq),
	}

	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// EffectID computes the content-addressed ID of one sync effect fired by
// an invocation. index is the effect's position in its rule; seq keeps two
// identically named rules apart.
func EffectID(invocationID, rule string, index int, seq int64, params IRObject) (string, error) {
	if params == nil {
		params = IRObject{}
	}
	obj := IRObject{
		"invocation_id": IRString(invocationID),
		"rule":          IRString(rule),
		"index":         IRInt(index),
		"seq":           IRInt(seq),
		"params":        params,
	}

	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EffectID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEffect, canonical), nil
}

// MustInvocationID is like InvocationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInvocationID(flowToken string, action ActionRef, args IRObject, seq int64) string {
	id, err := InvocationID(flowToken, action, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
