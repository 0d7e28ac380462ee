package auction

import (
	"errors"
	"fmt"
)

type RejectReason string

const (
	ReasonNotFound          RejectReason = "not_found"
	ReasonNotActive         RejectReason = "not_active"
	ReasonAuctionEnded      RejectReason = "auction_ended"
	ReasonSelfBid           RejectReason = "self_bid"
	ReasonInvalidAmount     RejectReason = "invalid_amount"
	ReasonBelowMinimum      RejectReason = "below_minimum"
	ReasonAlreadyHighest    RejectReason = "already_highest"
	ReasonNotOwner          RejectReason = "not_owner"
	ReasonAlreadyRetracted  RejectReason = "already_retracted"
	ReasonNotHighest        RejectReason = "not_highest"
	ReasonRetractionExpired RejectReason = "retraction_expired"
	ReasonProxyBelowMinimum RejectReason = "proxy_below_minimum"
	ReasonNotSeller         RejectReason = "not_seller"
	ReasonHasBids           RejectReason = "has_bids"
	ReasonInvalidListing    RejectReason = "invalid_listing"
)

// ErrConflict is returned when concurrent writers kept winning the item after every retry.
var ErrConflict = errors.New("someone else just bid, please retry")

// RejectionError is a validation outcome. Apart from a lazy finalization of an
// expired item, nothing was written when it is returned.
type RejectionError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func reject(reason RejectReason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a validation rejection and returns it.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ReasonOf returns the rejection reason of err, or "" for any other error.
func ReasonOf(err error) RejectReason {
	if rej, ok := IsRejection(err); ok {
		return rej.Reason
	}
	return ""
}
