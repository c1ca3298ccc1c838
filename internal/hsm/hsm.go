// Package hsm is a deterministic software stand-in for a payment HSM.
//
// Every derived value is a keyed, salted HMAC-SHA256 over the PAN suffix and
// contextual fields. Outputs are deterministic and fixed-length, and no
// output allows recovery of a PIN. This is a simulator, not a security
// boundary: PIN-block verification in particular is structural only (see
// VerifyPinBlock) and must not be mistaken for cryptographic verification.
package hsm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"issuer-core/internal/domain"
)

type Module struct {
	key []byte
}

func New(key string) *Module {
	return &Module{key: []byte(key)}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validPAN(pan string) bool {
	return allDigits(pan) && len(pan) >= 12 && len(pan) <= 19
}

// panSuffix keeps derivations bound to the card without feeding the whole
// PAN through every context.
func panSuffix(pan string) string {
	if len(pan) <= 12 {
		return pan
	}
	return pan[len(pan)-12:]
}

func (m *Module) mac(parts ...string) []byte {
	h := hmac.New(sha256.New, m.key)
	h.Write([]byte(strings.Join(parts, "|")))
	return h.Sum(nil)
}

// decimalize maps MAC bytes onto n decimal digits.
func decimalize(sum []byte, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte('0' + sum[i%len(sum)]%10)
	}
	return b.String()
}

// DerivePVV derives the 4-digit PIN Verification Value for a card. The
// clear PIN exists only for the duration of this call; nothing derived from
// it is reversible. Callers must discard the PIN immediately after.
func (m *Module) DerivePVV(pan, clearPin string) (string, error) {
	if !validPAN(pan) {
		return "", fmt.Errorf("%w: malformed pan", domain.ErrSecurity)
	}
	if !allDigits(clearPin) || len(clearPin) < 4 || len(clearPin) > 12 {
		return "", fmt.Errorf("%w: pin must be 4-12 digits", domain.ErrSecurity)
	}
	sum := m.mac("pvv.v1", panSuffix(pan), clearPin)
	return decimalize(sum, 4), nil
}

// VerifyPinBlock checks an ISO-9564 format-0 PIN block against the stored
// PVV.
//
// Known gap, kept on purpose: a real HSM would decrypt the block, recompute
// the PVV from the clear PIN and compare. This simulator cannot decrypt, so
// it validates structure instead: block well-formedness, format marker,
// encoded PIN length, and PVV shape. The contract preserved is that
// verification is rejectable for malformed input and never needs the clear
// PIN; cryptographic equivalence is out of scope.
func (m *Module) VerifyPinBlock(pan, pinBlock, storedPvv string) bool {
	if !validPAN(pan) {
		return false
	}
	if len(pinBlock) != 16 {
		return false
	}
	if _, err := hex.DecodeString(pinBlock); err != nil {
		return false
	}
	// Format nibble must be 0 (ISO format 0).
	if pinBlock[0] != '0' {
		return false
	}
	// Length nibble encodes a 4-12 digit PIN: '4'..'9', 'a'..'c'.
	n := pinBlock[1]
	switch {
	case n >= '4' && n <= '9':
	case n >= 'a' && n <= 'c':
	case n >= 'A' && n <= 'C':
	default:
		return false
	}
	return allDigits(storedPvv) && len(storedPvv) == 4
}

// GenerateCVV derives the 3-digit verification value printed on the card.
func (m *Module) GenerateCVV(pan, expiry, serviceCode string) string {
	sum := m.mac("cvv.v1", panSuffix(pan), expiry, serviceCode)
	return decimalize(sum, 3)
}

// GenerateCVV2 is the card-not-present variant: same derivation with the
// fixed service code 000.
func (m *Module) GenerateCVV2(pan, expiry string) string {
	return m.GenerateCVV(pan, expiry, "000")
}

// GenerateICVV derives the 4-digit chip verification value.
func (m *Module) GenerateICVV(pan, sequenceNumber string) string {
	sum := m.mac("icvv.v1", panSuffix(pan), sequenceNumber)
	return decimalize(sum, 4)
}

// DeriveSessionKey derives 16 bytes of session key material, hex encoded,
// from a named master key and the card PAN.
func (m *Module) DeriveSessionKey(masterKeyName, pan string) string {
	sum := m.mac("sk.v1", masterKeyName, panSuffix(pan))
	return strings.ToUpper(hex.EncodeToString(sum[:16]))
}

// GenerateARQC produces a 16-hex request cryptogram. The nonce is supplied
// by the caller and must be carried through to ValidateARQC: generation has
// no wall-clock or other non-reproducible input, so validation can recompute
// exactly.
func (m *Module) GenerateARQC(pan, nonce string) (string, error) {
	if !validPAN(pan) {
		return "", fmt.Errorf("%w: malformed pan", domain.ErrSecurity)
	}
	if strings.TrimSpace(nonce) == "" {
		return "", fmt.Errorf("%w: missing nonce", domain.ErrSecurity)
	}
	sum := m.mac("arqc.v1", panSuffix(pan), nonce)
	return strings.ToUpper(hex.EncodeToString(sum[:8])), nil
}

// ValidateARQC recomputes the cryptogram for (pan, nonce) and compares the
// leading 8 hex digits of the received value.
func (m *Module) ValidateARQC(pan, nonce, received string) bool {
	want, err := m.GenerateARQC(pan, nonce)
	if err != nil {
		return false
	}
	received = strings.ToUpper(strings.TrimSpace(received))
	if len(received) < 8 {
		return false
	}
	return received[:8] == want[:8]
}

// GenerateARPC derives the 16-hex response cryptogram. It is keyed only by
// the approve/decline outcome: any approval code yields one value per ARQC,
// any decline code the other.
func (m *Module) GenerateARPC(arqc, responseCode string) string {
	outcome := "D"
	switch strings.ToUpper(strings.TrimSpace(responseCode)) {
	case "00", "APPROVED":
		outcome = "A"
	}
	sum := m.mac("arpc.v1", strings.ToUpper(arqc), outcome)
	return strings.ToUpper(hex.EncodeToString(sum[:8]))
}
