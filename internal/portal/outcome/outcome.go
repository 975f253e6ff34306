// Package outcome maps the portal's esito fields into the caller-facing
// result and error taxonomy.
package outcome

import (
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
)

// LineFailure is a record the portal refused, by position in the batch.
type LineFailure struct {
	Index       int    `json:"index"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Classification is the interpreted result of one Test or Send call.
type Classification struct {
	Success          bool
	Accepted         int
	Total            int
	ErrorCode        string
	ErrorDescription string
	ErrorDetail      string
	LineFailures     []LineFailure

	// Err is nil on success, otherwise a rejection-kind *portalerr.Error.
	Err error
}

// Classify interprets out for a batch of total records sent with op.
//
// Success requires esito=true and no refused line. A negative esito without
// a code wraps ErrUnknownPortalRejection. When the portal omits the accepted
// count on a fully successful call, every record is counted as accepted; a
// reported count below total is a rejection, including an explicit zero.
func Classify(op string, out models.Outcome, total int) Classification {
	c := Classification{
		Accepted:         out.Accepted,
		Total:            total,
		ErrorCode:        out.Code,
		ErrorDescription: out.Description,
		ErrorDetail:      out.Detail,
	}
	for i, line := range out.Lines {
		if line.Esito {
			continue
		}
		c.LineFailures = append(c.LineFailures, LineFailure{
			Index:       i,
			Code:        line.Code,
			Description: line.Description,
			Detail:      line.Detail,
		})
	}

	if !out.Esito {
		c.Err = portalerr.Rejection(op, out.Code, out.Description, out.Detail)
		return c
	}

	if len(c.LineFailures) == 0 && (!out.AcceptedReported || c.Accepted >= total) {
		c.Success = true
		c.Accepted = total
		return c
	}

	// Partial acceptance: report the first refused line's reason.
	if len(c.LineFailures) > 0 {
		first := c.LineFailures[0]
		c.ErrorCode, c.ErrorDescription, c.ErrorDetail = first.Code, first.Description, first.Detail
	}
	if c.ErrorDescription == "" {
		c.ErrorDescription = "portal accepted only part of the batch"
	}
	c.Err = portalerr.Rejection(op, c.ErrorCode, c.ErrorDescription, c.ErrorDetail)
	return c
}
