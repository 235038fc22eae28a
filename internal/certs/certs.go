// Package certs normalizes PEM encoded certificates so that they can be compared
// and fingerprinted independently of how the PEM text was formatted.
package certs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// MinCertificateSize is the smallest decoded payload accepted by Normalize.
const MinCertificateSize = 32

// ErrMalformedCertificate is returned when PEM text does not carry a usable payload.
var ErrMalformedCertificate = errors.New("malformed certificate")

var (
	lineSplitter = regexp.MustCompile(`\r?\n`)
	beginMarker  = regexp.MustCompile(`^-+BEGIN CERTIFICATE`)
	endMarker    = regexp.MustCompile(`^-+END CERTIFICATE`)
)

// Normalize returns the decoded payload of the provided PEM text. Everything up to
// and including the BEGIN CERTIFICATE line and everything from the END CERTIFICATE
// line onward is discarded, and the remaining lines are decoded as base64.
//
// The payload is not parsed as ASN.1. Two certificates which differ only in line
// endings, line wrapping or surrounding blank lines normalize to the same bytes.
func Normalize(text string) ([]byte, error) {

	lines := lineSplitter.Split(text, -1)

	for i, line := range lines {
		if endMarker.MatchString(line) {
			lines = lines[:i]
			break
		}
	}

	begin := -1
	for i, line := range lines {
		if beginMarker.MatchString(line) {
			begin = i
		}
	}
	lines = lines[begin+1:]

	payload := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.Join(lines, ""))

	buf, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedCertificate, "failed to decode PEM payload: %v", err)
	}

	if len(buf) < MinCertificateSize {
		return nil, errors.Wrapf(ErrMalformedCertificate, "expected PEM data to be at least %d bytes, got %d", MinCertificateSize, len(buf))
	}

	return buf, nil
}

// CanonicalKey returns a lossless textual key for a normalized certificate. Two
// certificates are the same certificate iff their keys are equal.
func CanonicalKey(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// Fingerprint returns the SHA-256 digest of buf as colon separated, uppercase hex
// pairs (e.g. "AB:CD:..."), the format UnrealIRCd expects for sslclientcertfp.
func Fingerprint(buf []byte) string {
	sum := sha256.Sum256(buf)
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))

	var b strings.Builder
	b.Grow(len(digest) + len(digest)/2)
	for i := 0; i < len(digest); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(digest[i : i+2])
	}

	return b.String()
}

// KeyFromPEM normalizes text and returns its CanonicalKey.
func KeyFromPEM(text string) (string, error) {
	buf, err := Normalize(text)
	if err != nil {
		return "", err
	}
	return CanonicalKey(buf), nil
}

// FingerprintFromPEM normalizes text and returns its Fingerprint.
func FingerprintFromPEM(text string) (string, error) {
	buf, err := Normalize(text)
	if err != nil {
		return "", err
	}
	return Fingerprint(buf), nil
}
