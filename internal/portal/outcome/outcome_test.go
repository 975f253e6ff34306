package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		out          models.Outcome
		total        int
		wantSuccess  bool
		wantAccepted int
		wantCode     string
		wantErr      error
		wantFailures []int
	}{
		{
			name:         "all accepted",
			out:          models.Outcome{Esito: true, Accepted: 3, AcceptedReported: true},
			total:        3,
			wantSuccess:  true,
			wantAccepted: 3,
		},
		{
			name:         "accepted count omitted",
			out:          models.Outcome{Esito: true},
			total:        2,
			wantSuccess:  true,
			wantAccepted: 2,
		},
		{
			name:     "explicit rejection",
			out:      models.Outcome{Esito: false, Code: "E01", Description: "Token scaduto"},
			total:    3,
			wantCode: "E01",
			wantErr:  portalerr.ErrPortalRejection,
		},
		{
			name:    "negative esito without code",
			out:     models.Outcome{Esito: false},
			total:   1,
			wantErr: portalerr.ErrUnknownPortalRejection,
		},
		{
			name: "one refused line",
			out: models.Outcome{Esito: true, Accepted: 1, AcceptedReported: true, Lines: []models.LineOutcome{
				{Esito: true},
				{Esito: false, Code: "E12", Description: "Comune errato"},
			}},
			total:        2,
			wantAccepted: 1,
			wantCode:     "E12",
			wantErr:      portalerr.ErrPortalRejection,
			wantFailures: []int{1},
		},
		{
			name:         "count short without detail",
			out:          models.Outcome{Esito: true, Accepted: 2, AcceptedReported: true},
			total:        3,
			wantAccepted: 2,
			wantErr:      portalerr.ErrUnknownPortalRejection,
		},
		{
			name:    "explicit zero accepted",
			out:     models.Outcome{Esito: true, Accepted: 0, AcceptedReported: true},
			total:   3,
			wantErr: portalerr.ErrUnknownPortalRejection,
		},
		{
			name:         "count omitted with refused line",
			out:          models.Outcome{Esito: true, Lines: []models.LineOutcome{{Esito: false, Code: "E07", Description: "Documento errato"}}},
			total:        1,
			wantCode:     "E07",
			wantErr:      portalerr.ErrPortalRejection,
			wantFailures: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify("Test", tt.out, tt.total)

			assert.Equal(t, tt.wantSuccess, c.Success)
			assert.Equal(t, tt.wantCode, c.ErrorCode)
			assert.Equal(t, tt.total, c.Total)
			if tt.wantSuccess || tt.wantAccepted > 0 {
				assert.Equal(t, tt.wantAccepted, c.Accepted)
			}
			if tt.wantErr == nil {
				assert.NoError(t, c.Err)
				return
			}
			require.Error(t, c.Err)
			assert.ErrorIs(t, c.Err, tt.wantErr)
			assert.Equal(t, portalerr.KindRejection, portalerr.KindOf(c.Err))
			assert.False(t, portalerr.IsRetryable(c.Err))

			var got []int
			for _, f := range c.LineFailures {
				got = append(got, f.Index)
			}
			assert.Equal(t, tt.wantFailures, got)
		})
	}
}

func TestClassify_RejectionCarriesPortalText(t *testing.T) {
	c := Classify("Send", models.Outcome{Esito: false, Code: "E21", Description: "Schedina duplicata", Detail: "riga 1"}, 1)

	var pe *portalerr.Error
	require.ErrorAs(t, c.Err, &pe)
	assert.Equal(t, "Send", pe.Op)
	assert.Equal(t, "E21", pe.Code)
	assert.Equal(t, "Schedina duplicata", pe.Message)
	assert.Equal(t, "riga 1", pe.Detail)
}
