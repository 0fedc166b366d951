package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	// TonProofPrefix — фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	TonConnectPrefix = "ton-connect"

	// MaxProofAge — максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute

	maxClockSkew = time.Minute
)

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // nonce issued by GeneratePayload
	Signature string      `json:"signature"` // base64 (hex accepted)
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// VerifyProof checks a TON Connect ton_proof signature made by pubKeyHex for addr.
//
// message = "ton-proof-item-v2/" ++ workchain(4 BE) ++ hash(32) ++
// domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload;
// the wallet signs sha256(0xffff ++ "ton-connect" ++ sha256(message)).
func VerifyProof(pubKeyHex string, addr *address.Address, proof Proof, allowedDomains []string, now time.Time) error {
	if addr == nil {
		return fmt.Errorf("address is required")
	}

	proofTime := time.Unix(proof.Timestamp, 0)
	if now.Sub(proofTime) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}
	if proof.Domain.LengthBytes != len(proof.Domain.Value) {
		return fmt.Errorf("domain length mismatch: %d != %d", proof.Domain.LengthBytes, len(proof.Domain.Value))
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	hash := proofHash(addr, proof)
	if !ed25519.Verify(pubKey, hash[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func proofHash(addr *address.Address, proof Proof) [32]byte {
	message := []byte(TonProofPrefix)
	message = binary.BigEndian.AppendUint32(message, uint32(addr.Workchain()))
	message = append(message, addr.Data()...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	return sha256.Sum256(signatureMessage)
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		if h, herr := hex.DecodeString(s); herr == nil {
			sig, err = h, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // если список пуст, разрешаем всё (dev mode)
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
