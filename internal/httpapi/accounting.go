package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

type dateRequest struct {
	Date time.Time `json:"date"`
}

type paymentRequest struct {
	BankAccountID uint            `json:"bank_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
}

// accountingRoutes serves entities, the chart of accounts, the journal and
// the payables and receivables documents.
func (s *server) accountingRoutes(r chi.Router) error {
	entities, err := newResource[models.Entity](s, models.RecordEntity, records.WithSearch("name", "legal_name"))
	if err != nil {
		return err
	}
	r.Route("/entities", func(r chi.Router) {
		entities.mount(r)
		r.Get("/{id}/trial-balance", s.trialBalance)
		r.Get("/{id}/aging/{kind}", s.aging)
		r.Get("/{id}/ownership", s.ownership)
	})

	accounts, err := newResource[models.GLAccount](s, "gl_account",
		records.WithSearch("code", "name"),
		records.WithReadOnly(accounting.AccountReadOnly...))
	if err != nil {
		return err
	}
	accounts.remove = s.svc.Accounting.DeleteAccount
	r.Route("/accounts", accounts.mount)

	vendors, err := newResource[models.Vendor](s, models.RecordVendor, records.WithSearch("name", "email"))
	if err != nil {
		return err
	}
	r.Route("/vendors", vendors.mount)

	customers, err := newResource[models.Customer](s, "customer", records.WithSearch("name", "email"))
	if err != nil {
		return err
	}
	r.Route("/customers", customers.mount)

	entries, err := newResource[models.JournalEntry](s, "journal_entry",
		records.WithSearch("memo"), records.WithPreload("Lines"))
	if err != nil {
		return err
	}
	entries.create = s.svc.Accounting.Post
	entries.immutable = true
	r.Route("/journal-entries", func(r chi.Router) {
		entries.mount(r)
		r.Post("/{id}/reverse", s.reverseEntry)
	})

	bills, err := newResource[models.Bill](s, models.RecordBill,
		records.WithSearch("number"),
		records.WithPreload("Lines", "Payments"),
		records.WithReadOnly("status", "total", "amount_paid", "journal_entry_id"))
	if err != nil {
		return err
	}
	bills.create = s.svc.Accounting.CreateBill
	bills.update = s.svc.Accounting.UpdateBill
	bills.noDelete = true
	r.Route("/bills", func(r chi.Router) {
		bills.mount(r)
		r.Post("/{id}/approve", s.approveBill)
		r.Post("/{id}/payments", s.payBill)
		r.Post("/{id}/void", s.voidBill)
	})

	invoices, err := newResource[models.Invoice](s, models.RecordInvoice,
		records.WithSearch("number"),
		records.WithPreload("Lines", "Payments"),
		records.WithReadOnly("status", "total", "amount_paid", "journal_entry_id"))
	if err != nil {
		return err
	}
	invoices.create = s.svc.Accounting.CreateInvoice
	invoices.update = s.svc.Accounting.UpdateInvoice
	invoices.noDelete = true
	r.Route("/invoices", func(r chi.Router) {
		invoices.mount(r)
		r.Post("/{id}/issue", s.issueInvoice)
		r.Post("/{id}/payments", s.receivePayment)
		r.Post("/{id}/void", s.voidInvoice)
	})
	return nil
}

func (s *server) trialBalance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		fail(w, r, err)
		return
	}
	tb, err := s.svc.Accounting.TrialBalance(r.Context(), id, asOf)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tb)
}

func (s *server) aging(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	kind := accounting.AgingKind(chi.URLParam(r, "kind"))
	if err := ensure(kind == accounting.AgingPayables || kind == accounting.AgingReceivables,
		"aging kind must be ap or ar, got %q", kind); err != nil {
		fail(w, r, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		fail(w, r, err)
		return
	}
	rep, err := s.svc.Accounting.Aging(r.Context(), kind, id, asOf)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rep)
}

func (s *server) ownership(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	own, err := s.svc.Investors.Ownership(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, own)
}

func (s *server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req dateRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	entry, err := s.svc.Accounting.Reverse(r.Context(), id, orToday(req.Date))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, entry)
}

func (s *server) approveBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	bill, err := s.svc.Accounting.ApproveBill(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, bill)
}

func (s *server) payBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req paymentRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	pmt, err := s.svc.Accounting.PayBill(r.Context(), id, req.BankAccountID, req.Amount, orToday(req.Date))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, pmt)
}

func (s *server) voidBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req dateRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	bill, err := s.svc.Accounting.VoidBill(r.Context(), id, orToday(req.Date))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, bill)
}

func (s *server) issueInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	inv, err := s.svc.Accounting.IssueInvoice(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, inv)
}

func (s *server) receivePayment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req paymentRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	pmt, err := s.svc.Accounting.ReceivePayment(r.Context(), id, req.BankAccountID, req.Amount, orToday(req.Date))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, pmt)
}

func (s *server) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req dateRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	inv, err := s.svc.Accounting.VoidInvoice(r.Context(), id, orToday(req.Date))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, inv)
}
