// Package soap builds the portal's request envelopes and extracts result
// fields from its responses. Text values are escaped by encoding/xml.
package soap

import (
	"encoding/xml"
	"fmt"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
)

// Namespace of every portal operation element.
const Namespace = "AlloggiatiService"

const (
	nsSoap = "http://schemas.xmlsoap.org/soap/envelope/"
	nsXSI  = "http://www.w3.org/2001/XMLSchema-instance"
	nsXSD  = "http://www.w3.org/2001/XMLSchema"
)

// Operation names a remote portal operation.
type Operation string

const (
	OpGenerateToken Operation = "GenerateToken"
	OpTest          Operation = "Test"
	OpSend          Operation = "Send"
	OpTabella       Operation = "Tabella"
)

// Action is the SOAPAction header value identifying the operation.
func (o Operation) Action() string {
	return Namespace + "/" + string(o)
}

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	XSI     string   `xml:"xmlns:xsi,attr"`
	XSD     string   `xml:"xmlns:xsd,attr"`
	Soap    string   `xml:"xmlns:soap,attr"`
	Body    body     `xml:"soap:Body"`
}

type body struct {
	Content any
}

type generateTokenRequest struct {
	XMLName  xml.Name `xml:"AlloggiatiService GenerateToken"`
	Utente   string   `xml:"Utente"`
	Password string   `xml:"Password"`
	WsKey    string   `xml:"WsKey"`
}

// schedineRequest serves both Test and Send; XMLName is set per operation.
type schedineRequest struct {
	XMLName        xml.Name
	Utente         string   `xml:"Utente"`
	Token          string   `xml:"token"`
	ElencoSchedine []string `xml:"ElencoSchedine>string"`
}

type tabellaRequest struct {
	XMLName xml.Name `xml:"AlloggiatiService Tabella"`
	Utente  string   `xml:"Utente"`
	Token   string   `xml:"token"`
	Tipo    string   `xml:"tipo"`
}

func marshal(content any) ([]byte, error) {
	env := envelope{
		XSI:  nsXSI,
		XSD:  nsXSD,
		Soap: nsSoap,
		Body: body{Content: content},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// BuildAuthRequest builds the GenerateToken envelope.
func BuildAuthRequest(username, password, wsKey string) ([]byte, error) {
	return marshal(generateTokenRequest{
		Utente:   username,
		Password: password,
		WsKey:    wsKey,
	})
}

// BuildValidateRequest builds the Test envelope for a batch.
func BuildValidateRequest(username, token string, records []schedina.Schedina) ([]byte, error) {
	return buildSchedine(OpTest, username, token, records)
}

// BuildSubmitRequest builds the Send envelope for a batch.
func BuildSubmitRequest(username, token string, records []schedina.Schedina) ([]byte, error) {
	return buildSchedine(OpSend, username, token, records)
}

func buildSchedine(op Operation, username, token string, records []schedina.Schedina) ([]byte, error) {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = string(r)
	}
	return marshal(schedineRequest{
		XMLName:        xml.Name{Space: Namespace, Local: string(op)},
		Utente:         username,
		Token:          token,
		ElencoSchedine: lines,
	})
}

// BuildTableRequest builds the Tabella envelope.
func BuildTableRequest(username, token string, table models.TableType) ([]byte, error) {
	return marshal(tabellaRequest{
		Utente: username,
		Token:  token,
		Tipo:   string(table),
	})
}
