package service_test

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/service"
	"alloggiati/internal/portal/submission"
	"alloggiati/internal/portal/tables"
	"alloggiati/internal/portal/tables/store"
	"alloggiati/internal/portal/token"
	"alloggiati/internal/portal/transport"
	"alloggiati/pkg/testutil"
)

// fakePortal answers the four operations and counts calls per SOAPAction.
type fakePortal struct {
	mu        sync.Mutex
	calls     map[string]int
	testEsito string
	lastBody  string
}

func newFakePortal() *fakePortal {
	return &fakePortal{calls: map[string]int{}, testEsito: "true"}
}

func (f *fakePortal) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	action := r.Header.Get("SOAPAction")

	f.mu.Lock()
	f.calls[action]++
	f.lastBody = string(body)
	testEsito := f.testEsito
	f.mu.Unlock()

	var records struct {
		Lines []string `xml:"Body>Send>ElencoSchedine>string"`
	}
	_ = xml.Unmarshal(body, &records)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	env := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>%s</soap:Body></soap:Envelope>`
	switch action {
	case "AlloggiatiService/GenerateToken":
		expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, env, `<GenerateTokenResponse xmlns="AlloggiatiService"><GenerateTokenResult><issued>`+
			time.Now().UTC().Format(time.RFC3339)+`</issued><expires>`+expires+`</expires><token>tok-1</token></GenerateTokenResult>`+
			`<result><esito>true</esito></result></GenerateTokenResponse>`)
	case "AlloggiatiService/Test":
		code := ""
		if testEsito == "false" {
			code = "E01"
		}
		fmt.Fprintf(w, env, `<TestResponse xmlns="AlloggiatiService"><TestResult><esito>`+testEsito+`</esito><ErroreCod>`+code+`</ErroreCod></TestResult></TestResponse>`)
	case "AlloggiatiService/Send":
		fmt.Fprintf(w, env, fmt.Sprintf(`<SendResponse xmlns="AlloggiatiService"><SendResult><esito>true</esito></SendResult><result><SchedineValide>%d</SchedineValide></result></SendResponse>`, len(records.Lines)))
	case "AlloggiatiService/Tabella":
		fmt.Fprintf(w, env, `<TabellaResponse xmlns="AlloggiatiService"><TabellaResult><esito>true</esito></TabellaResult><CSV>Codice;Descrizione
16;OSPITE SINGOLO
17;CAPO FAMIGLIA
</CSV></TabellaResponse>`)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func newService(t *testing.T, portal *fakePortal) *service.Service {
	t.Helper()
	srv := httptest.NewServer(portal)
	t.Cleanup(srv.Close)

	tr := transport.New(transport.WithEndpoint(srv.URL), transport.WithTimeout(5*time.Second))
	registry := token.NewRegistry(token.NewPortalAuthenticator(tr))
	tbl := tables.New(registry, tr, store.NewInMemoryCache(time.Hour))
	return service.New(registry, tr, tbl,
		service.WithWorkflowOptions(submission.WithRetryPolicy(submission.NoRetry())),
	)
}

var creds = models.Credentials{Username: "hotel01", Password: "secret", WSKey: "key"}

func guests() []models.GuestRecord {
	head := models.GuestRecord{
		GuestType:         schedina.GuestFamilyHead,
		ArrivalDate:       "15/01/2024",
		Nights:            3,
		FamilyName:        "Rossi",
		GivenName:         "Mario",
		Sex:               "M",
		BirthDate:         "1990-01-01",
		BirthMunicipality: "58091",
		BirthProvince:     "RM",
		BirthCountry:      schedina.CountryItaly,
		Citizenship:       schedina.CountryItaly,
		DocumentType:      "IDENT",
		DocumentNumber:    "AB1234567",
		DocumentIssueDate: "2020-03-10",
		IssuingAuthority:  "58091",
	}
	member := head
	member.GuestType = schedina.GuestFamilyMember
	member.GivenName = "Giulia"
	member.Sex = "F"
	member.DocumentType, member.DocumentNumber, member.DocumentIssueDate, member.IssuingAuthority = "", "", "", ""
	return []models.GuestRecord{head, member}
}

func TestSubmitGuestBatch(t *testing.T) {
	testutil.Given(t, "a reachable portal that accepts the batch", func(t *testing.T) {
		portal := newFakePortal()
		svc := newService(t, portal)

		testutil.When(t, "two family members are submitted twice", func(t *testing.T) {
			for i := 0; i < 2; i++ {
				res, err := svc.SubmitGuestBatch(context.Background(), creds, guests())
				require.NoError(t, err)
				assert.Equal(t, submission.StateAcknowledged, res.State)
				assert.Equal(t, 2, res.Accepted)
			}

			testutil.Then(t, "the token is reused and every submit was validated first", func(t *testing.T) {
				assert.Equal(t, 1, portal.count("AlloggiatiService/GenerateToken"))
				assert.Equal(t, 2, portal.count("AlloggiatiService/Test"))
				assert.Equal(t, 2, portal.count("AlloggiatiService/Send"))
			})

			testutil.And(t, "the account's session is reported as valid", func(t *testing.T) {
				assert.Equal(t, token.StateValid, svc.TokenStates()["hotel01"])
			})
		})
	})

	testutil.Given(t, "a portal that refuses validation", func(t *testing.T) {
		portal := newFakePortal()
		portal.testEsito = "false"
		svc := newService(t, portal)

		res, err := svc.SubmitGuestBatch(context.Background(), creds, guests())

		testutil.Then(t, "nothing is sent and the portal code is surfaced", func(t *testing.T) {
			require.Error(t, err)
			assert.Equal(t, portalerr.KindRejection, portalerr.KindOf(err))
			assert.Equal(t, "E01", res.ErrorCode)
			assert.Equal(t, 0, portal.count("AlloggiatiService/Send"))
		})
	})

	testutil.Given(t, "a guest with invalid data", func(t *testing.T) {
		portal := newFakePortal()
		svc := newService(t, portal)
		batch := guests()
		batch[0].DocumentNumber = ""

		_, err := svc.SubmitGuestBatch(context.Background(), creds, batch)

		testutil.Then(t, "the portal is never contacted", func(t *testing.T) {
			assert.ErrorIs(t, err, portalerr.ErrFieldRequired)
			assert.Equal(t, 0, portal.count("AlloggiatiService/GenerateToken"))
		})
	})
}

func TestValidateGuestBatch(t *testing.T) {
	portal := newFakePortal()
	svc := newService(t, portal)

	res, err := svc.ValidateGuestBatch(context.Background(), creds, guests())
	require.NoError(t, err)
	assert.Equal(t, submission.StateValidated, res.State)
	assert.Equal(t, 0, portal.count("AlloggiatiService/Send"))
	assert.True(t, strings.Contains(portal.lastBody, "<Test xmlns=\"AlloggiatiService\">"))
}

func TestFetchTable(t *testing.T) {
	portal := newFakePortal()
	svc := newService(t, portal)

	rows, err := svc.FetchTable(context.Background(), creds, models.TableGuestTypes)
	require.NoError(t, err)
	assert.Equal(t, []schedina.KeyValue{
		{Key: "16", Value: "OSPITE SINGOLO"},
		{Key: "17", Value: "CAPO FAMIGLIA"},
	}, rows)
}
