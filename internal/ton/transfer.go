package ton

import (
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// maxCommentBytes keeps the memo well inside one message cell chain.
const maxCommentBytes = 120

// ToNano converts a TON amount to nanoTON as a decimal string.
func ToNano(amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}
	coins, err := tlb.FromTON(amount.String())
	if err != nil {
		return "", fmt.Errorf("invalid TON amount %s: %w", amount, err)
	}
	return coins.Nano().String(), nil
}

// CommentPayload builds a text-comment message body (op 0 + snake string)
// and returns it as a base64 BOC, the format TON Connect expects.
func CommentPayload(comment string) (string, error) {
	if len(comment) > maxCommentBytes {
		return "", fmt.Errorf("comment too long: %d bytes", len(comment))
	}
	body := cell.BeginCell().MustStoreUInt(0, 32)
	if err := body.StoreStringSnake(comment); err != nil {
		return "", fmt.Errorf("store comment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body.EndCell().ToBOC()), nil
}

// ReadCommentPayload decodes a base64 BOC produced by CommentPayload.
func ReadCommentPayload(boc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(boc)
	if err != nil {
		return "", err
	}
	c, err := cell.FromBOC(raw)
	if err != nil {
		return "", err
	}
	s := c.BeginParse()
	op, err := s.LoadUInt(32)
	if err != nil {
		return "", err
	}
	if op != 0 {
		return "", fmt.Errorf("not a text comment, op %d", op)
	}
	return s.LoadStringSnake()
}
