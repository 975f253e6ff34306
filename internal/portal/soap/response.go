package soap

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // portal timestamps are Europe/Rome wall clock

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
)

// AuthResult is the decoded GenerateToken response.
type AuthResult struct {
	Outcome models.Outcome
	Token   models.AuthToken
}

// TableResult is the decoded Tabella response. Rows are raw delimited lines.
type TableResult struct {
	Outcome models.Outcome
	Rows    []string
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type esitoXML struct {
	Esito       *string `xml:"esito"`
	Code        string  `xml:"ErroreCod"`
	Description string  `xml:"ErroreDes"`
	Detail      string  `xml:"ErroreDettaglio"`
}

type tokenXML struct {
	Issued  string `xml:"issued"`
	Expires string `xml:"expires"`
	Token   string `xml:"token"`
}

type elencoXML struct {
	SchedineValide *string    `xml:"SchedineValide"`
	Dettaglio      []esitoXML `xml:"Dettaglio>EsitoOperazioneServizio"`
}

type authResponse struct {
	Body struct {
		Fault    *soapFault `xml:"Fault"`
		Response *struct {
			Result  *tokenXML `xml:"GenerateTokenResult"`
			Outcome *esitoXML `xml:"result"`
		} `xml:"GenerateTokenResponse"`
	} `xml:"Body"`
}

type outcomeBody struct {
	TestResult *esitoXML  `xml:"TestResult"`
	SendResult *esitoXML  `xml:"SendResult"`
	Elenco     *elencoXML `xml:"result"`
}

type outcomeResponse struct {
	Body struct {
		Fault *soapFault   `xml:"Fault"`
		Test  *outcomeBody `xml:"TestResponse"`
		Send  *outcomeBody `xml:"SendResponse"`
	} `xml:"Body"`
}

type tabellaResponse struct {
	Body struct {
		Fault    *soapFault `xml:"Fault"`
		Response *struct {
			Result *esitoXML `xml:"TabellaResult"`
			CSV    *string   `xml:"CSV"`
		} `xml:"TabellaResponse"`
	} `xml:"Body"`
}

func decode(op Operation, raw []byte, v any) error {
	if err := xml.Unmarshal(raw, v); err != nil {
		return portalerr.Protocol(string(op), fmt.Sprintf("decode envelope: %v", err))
	}
	return nil
}

func faultError(op Operation, f *soapFault) error {
	return portalerr.Protocol(string(op), fmt.Sprintf("soap fault %s: %s", strings.TrimSpace(f.Code), strings.TrimSpace(f.String)))
}

// ParseAuthResponse extracts the token and outcome of a GenerateToken call.
// A negative outcome is returned without error; a positive outcome without a
// usable token is malformed.
func ParseAuthResponse(raw []byte) (AuthResult, error) {
	var resp authResponse
	if err := decode(OpGenerateToken, raw, &resp); err != nil {
		return AuthResult{}, err
	}
	if resp.Body.Fault != nil {
		return AuthResult{}, faultError(OpGenerateToken, resp.Body.Fault)
	}
	r := resp.Body.Response
	if r == nil || r.Outcome == nil {
		return AuthResult{}, portalerr.Protocol(string(OpGenerateToken), "missing GenerateTokenResponse/result")
	}
	outcome, err := toOutcome(OpGenerateToken, r.Outcome)
	if err != nil {
		return AuthResult{}, err
	}
	result := AuthResult{Outcome: outcome}
	if !outcome.Esito {
		return result, nil
	}

	if r.Result == nil || strings.TrimSpace(r.Result.Token) == "" {
		return AuthResult{}, portalerr.Protocol(string(OpGenerateToken), "missing token")
	}
	expires, err := parseTimestamp(r.Result.Expires)
	if err != nil {
		return AuthResult{}, portalerr.Protocol(string(OpGenerateToken), fmt.Sprintf("expires: %v", err))
	}
	issued, err := parseTimestamp(r.Result.Issued)
	if err != nil {
		// issued is informational only
		issued = time.Time{}
	}
	result.Token = models.AuthToken{
		Value:     strings.TrimSpace(r.Result.Token),
		IssuedAt:  issued,
		ExpiresAt: expires,
	}
	return result, nil
}

// ParseOutcomeResponse extracts the outcome of a Test or Send call.
func ParseOutcomeResponse(op Operation, raw []byte) (models.Outcome, error) {
	var resp outcomeResponse
	if err := decode(op, raw, &resp); err != nil {
		return models.Outcome{}, err
	}
	if resp.Body.Fault != nil {
		return models.Outcome{}, faultError(op, resp.Body.Fault)
	}

	var esito *esitoXML
	var elenco *elencoXML
	switch op {
	case OpTest:
		if resp.Body.Test != nil {
			esito, elenco = resp.Body.Test.TestResult, resp.Body.Test.Elenco
		}
	case OpSend:
		if resp.Body.Send != nil {
			esito, elenco = resp.Body.Send.SendResult, resp.Body.Send.Elenco
		}
	default:
		return models.Outcome{}, fmt.Errorf("operation %s has no outcome response", op)
	}
	if esito == nil {
		return models.Outcome{}, portalerr.Protocol(string(op), fmt.Sprintf("missing %sResult", op))
	}

	outcome, err := toOutcome(op, esito)
	if err != nil {
		return models.Outcome{}, err
	}
	if elenco == nil {
		return outcome, nil
	}
	if elenco.SchedineValide != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*elenco.SchedineValide))
		if err != nil || n < 0 {
			return models.Outcome{}, portalerr.Protocol(string(op), fmt.Sprintf("invalid SchedineValide %q", *elenco.SchedineValide))
		}
		outcome.Accepted = n
		outcome.AcceptedReported = true
	}
	for i := range elenco.Dettaglio {
		line, err := toOutcome(op, &elenco.Dettaglio[i])
		if err != nil {
			return models.Outcome{}, err
		}
		outcome.Lines = append(outcome.Lines, models.LineOutcome{
			Esito:       line.Esito,
			Code:        line.Code,
			Description: line.Description,
			Detail:      line.Detail,
		})
	}
	return outcome, nil
}

// ParseTableResponse extracts the outcome and raw rows of a Tabella call.
func ParseTableResponse(raw []byte) (TableResult, error) {
	var resp tabellaResponse
	if err := decode(OpTabella, raw, &resp); err != nil {
		return TableResult{}, err
	}
	if resp.Body.Fault != nil {
		return TableResult{}, faultError(OpTabella, resp.Body.Fault)
	}
	r := resp.Body.Response
	if r == nil || r.Result == nil {
		return TableResult{}, portalerr.Protocol(string(OpTabella), "missing TabellaResult")
	}
	outcome, err := toOutcome(OpTabella, r.Result)
	if err != nil {
		return TableResult{}, err
	}
	result := TableResult{Outcome: outcome}
	if !outcome.Esito {
		return result, nil
	}
	if r.CSV == nil {
		return TableResult{}, portalerr.Protocol(string(OpTabella), "missing CSV")
	}
	for _, line := range strings.Split(*r.CSV, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Rows = append(result.Rows, line)
	}
	return result, nil
}

func toOutcome(op Operation, e *esitoXML) (models.Outcome, error) {
	if e.Esito == nil {
		return models.Outcome{}, portalerr.Protocol(string(op), "missing esito")
	}
	ok, err := strconv.ParseBool(strings.TrimSpace(*e.Esito))
	if err != nil {
		return models.Outcome{}, portalerr.Protocol(string(op), fmt.Sprintf("invalid esito %q", *e.Esito))
	}
	return models.Outcome{
		Esito:       ok,
		Code:        strings.TrimSpace(e.Code),
		Description: strings.TrimSpace(e.Description),
		Detail:      strings.TrimSpace(e.Detail),
	}, nil
}

var portalLocation = mustLoadLocation("Europe/Rome")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, portalLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t, nil
}
