package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"prepaid-billing/internal/billing/application"
	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/interfaces/export"
	"prepaid-billing/internal/htbill"
	"prepaid-billing/internal/observability/metrics"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// InvoiceService is the invoice surface used by the handler.
type InvoiceService interface {
	GenerateMonthly(ctx context.Context, period billing.Period) ([]billing.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error)
	InvoiceRecords(ctx context.Context, invoice billing.Invoice) ([]billing.ConsumptionRecord, error)
}

// AccountService is the account surface used by the handler.
type AccountService interface {
	GetAccount(ctx context.Context, accountID string) (billing.Account, error)
	Recharge(ctx context.Context, req application.RechargeRequest) (application.RechargeResult, error)
	UpdateContact(ctx context.Context, accountID string, update billing.ContactUpdate) (billing.Account, error)
	ListConsumption(ctx context.Context, accountID string, from, to time.Time) ([]billing.ConsumptionRecord, error)
}

// Services are the collaborators behind the HTTP surface.
type Services struct {
	Daily    application.DailyRunner
	Invoices InvoiceService
	Syncer   application.InvoiceSyncer
	Accounts AccountService
	Currency string
	Logger   *zap.Logger
}

// Handler serves the billing API.
type Handler struct {
	daily    application.DailyRunner
	invoices InvoiceService
	syncer   application.InvoiceSyncer
	accounts AccountService
	currency string
	logger   *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(s Services) (*Handler, error) {
	if s.Daily == nil {
		return nil, errors.New("billing handler: nil daily runner")
	}
	if s.Invoices == nil {
		return nil, errors.New("billing handler: nil invoice service")
	}
	if s.Syncer == nil {
		return nil, errors.New("billing handler: nil invoice syncer")
	}
	if s.Accounts == nil {
		return nil, errors.New("billing handler: nil account service")
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return &Handler{
		daily:    s.Daily,
		invoices: s.Invoices,
		syncer:   s.Syncer,
		accounts: s.Accounts,
		currency: s.Currency,
		logger:   s.Logger,
	}, nil
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/billing/", h)
	mux.Handle("/api/v1/invoices/", h)
	mux.Handle("/api/v1/accounts/", h)
	mux.Handle("/api/v1/ht-bills/", h)
}

// ServeHTTP routes /api/v1 billing requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/billing/daily-runs":
		h.requireMethod(w, r, http.MethodPost, h.handleDailyRun)
	case path == "/api/v1/invoices/generate":
		h.requireMethod(w, r, http.MethodPost, h.handleGenerateInvoices)
	case path == "/api/v1/invoices/sync":
		h.requireMethod(w, r, http.MethodPost, h.handleSync)
	case strings.HasPrefix(path, "/api/v1/invoices/"):
		h.requireMethod(w, r, http.MethodGet, h.handleInvoice)
	case strings.HasPrefix(path, "/api/v1/accounts/"):
		h.handleAccount(w, r)
	case path == "/api/v1/ht-bills/calculate":
		h.requireMethod(w, r, http.MethodPost, h.handleHTBill)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string, next func(http.ResponseWriter, *http.Request)) {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	next(w, r)
}

type dailyRunRequest struct {
	BillingDate string `json:"billing_date"`
}

func (h *Handler) handleDailyRun(w http.ResponseWriter, r *http.Request) {
	var req dailyRunRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	var day time.Time
	if req.BillingDate != "" {
		parsed, err := parseDate(req.BillingDate, "billing_date")
		if err != nil {
			h.writeError(w, err)
			return
		}
		day = parsed
	}
	run, err := h.daily.Run(r.Context(), day)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type generateInvoicesRequest struct {
	Period string `json:"period"`
}

func (h *Handler) handleGenerateInvoices(w http.ResponseWriter, r *http.Request) {
	var req generateInvoicesRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.writeError(w, err)
		return
	}
	invoices, err := h.invoices.GenerateMonthly(r.Context(), period)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if invoices == nil {
		invoices = []billing.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/invoices/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	invoice, err := h.invoices.GetInvoice(r.Context(), parts[0])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, invoice)
		return
	}

	records, err := h.invoices.InvoiceRecords(r.Context(), invoice)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var (
		body        []byte
		contentType string
		ext         string
	)
	switch parts[1] {
	case "export.pdf":
		body, err = export.BuildInvoicePDF(invoice, records, h.currency)
		contentType, ext = "application/pdf", "pdf"
	case "export.xlsx":
		body, err = export.BuildInvoiceXLSX(invoice, records, h.currency)
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, contentType, "invoice-"+invoice.ID+"."+ext, body)
}

type rechargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	VoucherCode string          `json:"voucher_code"`
	Reference   string          `json:"reference"`
}

type contactRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	accountID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		account, err := h.accounts.GetAccount(r.Context(), accountID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case action == "recharges" && r.Method == http.MethodPost:
		var req rechargeRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		result, err := h.accounts.Recharge(r.Context(), application.RechargeRequest{
			AccountID:   accountID,
			Amount:      req.Amount,
			VoucherCode: req.VoucherCode,
			Reference:   req.Reference,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	case action == "contact" && r.Method == http.MethodPatch:
		var req contactRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		account, err := h.accounts.UpdateContact(r.Context(), accountID, billing.ContactUpdate{
			Name:    req.Name,
			Address: req.Address,
			Phone:   req.Phone,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case action == "consumption" && r.Method == http.MethodGet:
		from, err := parseTimeQuery(r, "from")
		if err != nil {
			h.writeError(w, err)
			return
		}
		to, err := parseTimeQuery(r, "to")
		if err != nil {
			h.writeError(w, err)
			return
		}
		records, err := h.accounts.ListConsumption(r.Context(), accountID, from, to)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if records == nil {
			records = []billing.ConsumptionRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	case action == "" || action == "recharges" || action == "contact" || action == "consumption":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type htReadings struct {
	H1   decimal.Decimal `json:"h1"`
	H2   decimal.Decimal `json:"h2"`
	H3   decimal.Decimal `json:"h3"`
	KVAh decimal.Decimal `json:"kvah"`
}

type htBillRequest struct {
	Current           htReadings      `json:"current"`
	Previous          htReadings      `json:"previous"`
	MF                decimal.Decimal `json:"mf"`
	Rates             htbill.Rates    `json:"rates"`
	Load              decimal.Decimal `json:"load"`
	DisconnectionDate string          `json:"disconnection_date"`
	AgreementDate     string          `json:"agreement_date"`
	PreviousBillDate  string          `json:"bill_prev_date"`
	CurrentBillDate   string          `json:"bill_curr_date"`
}

func (req htBillRequest) input() (htbill.Input, error) {
	in := htbill.Input{
		Current:  htbill.Readings(req.Current),
		Previous: htbill.Readings(req.Previous),
		MF:       req.MF,
		Rates:    req.Rates,
		Load:     req.Load,
	}
	dates := []struct {
		field string
		value string
		dst   *time.Time
	}{
		{"disconnection_date", req.DisconnectionDate, &in.DisconnectionDate},
		{"agreement_date", req.AgreementDate, &in.AgreementDate},
		{"bill_prev_date", req.PreviousBillDate, &in.PreviousBillDate},
		{"bill_curr_date", req.CurrentBillDate, &in.CurrentBillDate},
	}
	for _, d := range dates {
		parsed, err := parseDate(d.value, d.field)
		if err != nil {
			return htbill.Input{}, err
		}
		*d.dst = parsed
	}
	return in, nil
}

func (h *Handler) handleHTBill(w http.ResponseWriter, r *http.Request) {
	var req htBillRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.IncHTBill(metrics.ResultError)
		h.writeError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		metrics.IncHTBill(metrics.ResultError)
		h.writeError(w, err)
		return
	}
	bill, err := htbill.Calculate(in)
	if err != nil {
		metrics.IncHTBill(metrics.ResultError)
		h.writeError(w, err)
		return
	}
	metrics.IncHTBill(metrics.ResultSuccess)

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, bill)
	case "pdf":
		body, err := export.BuildHTBillPDF(bill)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeFile(w, "application/pdf", "ht-bill.pdf", body)
	case "xlsx":
		body, err := export.BuildHTBillXLSX(bill)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "ht-bill.xlsx", body)
	default:
		h.writeError(w, billing.Validation("unknown format %q", r.URL.Query().Get("format")))
	}
}
