package qbclient

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/eGGnogSC/qbsync/internal/auth"
)

func TestUnwrapQueryResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantNil bool
	}{
		{
			name: "entity with metadata",
			body: `{"QueryResponse":{"startPosition":1,"Customer":[{"Id":"58"}],"maxResults":1,"totalCount":1},"time":"2024-03-01T10:00:00-08:00"}`,
			want: `[{"Id":"58"}]`,
		},
		{
			name:    "empty result",
			body:    `{"QueryResponse":{},"time":"2024-03-01T10:00:00-08:00"}`,
			wantNil: true,
		},
		{
			name:    "metadata only",
			body:    `{"QueryResponse":{"startPosition":1,"maxResults":0}}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnwrapQueryResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("UnwrapQueryResponse() error = %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %s", got)
				}
				return
			}
			if g := mustCompact(string(got)); g != mustCompact(tt.want) {
				t.Errorf("got %s, want %s", g, tt.want)
			}
		})
	}
}

func mustCompact(s string) string {
	var v any
	json.Unmarshal([]byte(s), &v)
	out, _ := json.Marshal(v)
	return string(out)
}

func TestUnwrapQueryResponseInvalidJSON(t *testing.T) {
	if _, err := UnwrapQueryResponse([]byte("<html>")); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestParseFault(t *testing.T) {
	body := []byte(`{"Fault":{"Error":[{"Message":"Stale Object Error","Detail":"You and root were working on this at the same time.","code":"5010"}],"type":"ValidationFault"}}`)
	fault := parseFault(body, 200)
	if fault == nil {
		t.Fatal("expected fault")
	}
	if fault.Code != "5010" || fault.Message != "Stale Object Error" || fault.StatusCode != 200 {
		t.Errorf("unexpected fault: %+v", fault)
	}
	if !errors.Is(fault, ErrConcurrencyConflict) {
		t.Error("stale object fault should match ErrConcurrencyConflict")
	}

	other := parseFault([]byte(`{"Fault":{"Error":[{"Message":"Duplicate Name Exists Error","code":"6240"}]}}`), 400)
	if errors.Is(other, ErrConcurrencyConflict) {
		t.Error("duplicate name fault must not match ErrConcurrencyConflict")
	}

	if parseFault([]byte(`{"Customer":{"Id":"1"}}`), 200) != nil {
		t.Error("success body parsed as fault")
	}
}

func TestParseFaultLowercaseEnvelope(t *testing.T) {
	body := []byte(`{"fault":{"error":[{"message":"message=AuthenticationFailed","detail":"Token expired","code":"3200"}],"type":"AUTHENTICATION"}}`)
	fault := parseFault(body, 401)
	if fault == nil || fault.Code != "3200" {
		t.Fatalf("expected 3200 fault, got %+v", fault)
	}
}

func TestEscapeQueryValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme", "Acme"},
		{"O'Brien's Bakery", `O\'Brien\'s Bakery`},
		{`Acme\`, `Acme\\`},
		{`a\'b`, `a\\\'b`},
	}
	for _, tt := range tests {
		if got := EscapeQueryValue(tt.in); got != tt.want {
			t.Errorf("EscapeQueryValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLinkedInvoice(t *testing.T) {
	p := Payment{
		TotalAmt: 150,
		Line: []Line{
			{Amount: 100, LinkedTxn: []LinkedTxn{{TxnID: "130", TxnType: "Invoice"}}},
		},
	}
	id, amount, ok := p.LinkedInvoice()
	if !ok || id != "130" || amount != 100 {
		t.Errorf("LinkedInvoice() = %q, %v, %v", id, amount, ok)
	}

	unlinked := Payment{TotalAmt: 50, Line: []Line{{Amount: 50, LinkedTxn: []LinkedTxn{{TxnID: "9", TxnType: "CreditMemo"}}}}}
	if _, _, ok := unlinked.LinkedInvoice(); ok {
		t.Error("credit memo link should not count as an invoice link")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&Error{Kind: KindFault, Code: "5010"}, 409},
		{&Error{Kind: KindFault, Code: "6240"}, 502},
		{&Error{Kind: KindTransport}, 502},
		{&Error{Kind: KindAuth}, 401},
		{&Error{Kind: KindAuth, Err: auth.ErrNotConfigured}, 503},
		{errors.New("db down"), 500},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
