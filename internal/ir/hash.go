package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainDatabase = "idxstore/database/v1"
	DomainQuery    = "idxstore/query/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the digest of a database definition.
// Two specs with the same stores and indexes hash identically regardless of
// the order their index lists were declared in.
func SpecHash(spec DatabaseSpec) (string, error) {
	stores := make(IRArray, 0, len(spec.Stores))
	for _, s := range spec.Stores {
		stores = append(stores, IRObject{
			"name":             IRString(s.Name),
			"primary_key":      IRString(s.PrimaryKey),
			"primary_key_auto": IRBool(s.PrimaryKeyAuto),
			"unique_indexes":   stringSet(s.UniqueIndexes),
			"indexes":          stringSet(s.Indexes),
		})
	}
	obj := IRObject{
		"name":    IRString(spec.Name),
		"version": IRInt(spec.Version),
		"stores":  stores,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDatabase, canonical), nil
}

// QueryFingerprint computes the digest of a compiled query payload.
// Used as a stable identifier in logs and traces.
func QueryFingerprint(store string, payload []byte) string {
	data := make([]byte, 0, len(store)+1+len(payload))
	data = append(data, store...)
	data = append(data, 0x00)
	data = append(data, payload...)
	return hashWithDomain(DomainQuery, data)[:16]
}

func stringSet(values []string) IRObject {
	obj := make(IRObject, len(values))
	for _, v := range values {
		obj[v] = IRBool(true)
	}
	return obj
}
