package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors, one per rejection kind. Match with errors.Is.
var (
	ErrInvalidBinSide           = errors.New("InvalidBinSide")
	ErrBinOutOfRange            = errors.New("BinOutOfRange")
	ErrEmptyDistribution        = errors.New("EmptyDistribution")
	ErrDuplicateBin             = errors.New("DuplicateBin")
	ErrInvalidSlippageBound     = errors.New("InvalidSlippageBound")
	ErrBpsOutOfRange            = errors.New("BpsOutOfRange")
	ErrEmptyReduction           = errors.New("EmptyReduction")
	ErrPositionIdentityMismatch = errors.New("PositionIdentityMismatch")
	ErrPositionNotEmpty         = errors.New("PositionNotEmpty")
	ErrSettlement               = errors.New("SettlementError")
	ErrInvalidTransition        = errors.New("InvalidTransition")
)

// Violation is a rejected request. It names the broken rule and the bins involved.
type Violation struct {
	Kind   error
	BinIDs []int32
	Detail string
}

// Violate builds a Violation for kind.
func Violate(kind error, detail string, binIDs ...int32) *Violation {
	return &Violation{Kind: kind, BinIDs: binIDs, Detail: detail}
}

func (v *Violation) Error() string {
	var b strings.Builder
	b.WriteString(v.Kind.Error())
	if v.Detail != "" {
		b.WriteString(": ")
		b.WriteString(v.Detail)
	}
	if len(v.BinIDs) > 0 {
		b.WriteString(" (bins ")
		for i, id := range v.BinIDs {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.FormatInt(int64(id), 10))
		}
		b.WriteString(")")
	}
	return b.String()
}

func (v *Violation) Unwrap() error {
	return v.Kind
}

// IdentityMismatch reports a failed cross-reference between two accounts.
func IdentityMismatch(field string, want, got fmt.Stringer) *Violation {
	return Violate(ErrPositionIdentityMismatch, fmt.Sprintf("%s: expected %s, got %s", field, want, got))
}

// SettlementFailure wraps an error returned by the settlement engine. A nil
// kind defaults to ErrSettlement.
type SettlementFailure struct {
	Kind error
	Op   string
	Err  error
}

func (e *SettlementFailure) Error() string {
	kind := e.Kind
	if kind == nil {
		kind = ErrSettlement
	}
	return fmt.Sprintf("%s: %s: %v", kind, e.Op, e.Err)
}

// Unwrap exposes both the taxonomy kind and the engine error.
func (e *SettlementFailure) Unwrap() []error {
	kind := e.Kind
	if kind == nil {
		kind = ErrSettlement
	}
	return []error{kind, e.Err}
}
