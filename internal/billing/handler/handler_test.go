package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"billtrack/internal/billing/handler/mocks"
	"billtrack/internal/billing/models"
	"billtrack/internal/billing/service"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
	actor   id.Actor
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.actor = id.Actor{UserID: id.NewUserID(), Role: id.RoleOfficer}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithActor(req.Context(), s.actor)))
		})
	})
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), time.UTC).Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestCreateBill() {
	s.Run("maps request to input", func() {
		bill := &models.Bill{ID: id.NewBillID(), Number: "BILL-20260601-0001"}
		doc := &models.Document{ID: id.NewDocumentID(), Number: "DOC-20260601-0001", Status: models.StatusCreated}

		s.service.EXPECT().CreateBill(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, in models.BillInput) (*models.Bill, *models.Document, error) {
				s.Equal(models.ElectionProjectElection, in.ElectionType)
				s.True(in.Amount.Equal(decimal.RequireFromString("2500.75")))
				s.Equal(time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), in.DueDate)
				return bill, doc, nil
			})

		rec := s.do(http.MethodPost, "/bills", map[string]any{
			"election_type":     "project-election",
			"election_name":     "โครงการเลือกตั้ง อบต.",
			"amount":            "2500.75",
			"due_date":          "2026-07-15",
			"recipient_name":    "อบต.หนองใหญ่",
			"recipient_address": "12 ม.3",
		})
		s.Equal(http.StatusCreated, rec.Code)

		var resp struct {
			Bill struct {
				Number string `json:"bill_number"`
			} `json:"bill"`
			Document struct {
				Status string `json:"status"`
			} `json:"document"`
		}
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("created", resp.Document.Status)
	})

	s.Run("bad due date never reaches the service", func() {
		rec := s.do(http.MethodPost, "/bills", map[string]any{"due_date": "15/07/2026", "amount": 10})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do(http.MethodPost, "/bills", map[string]any{"due_date": "2026-07-15", "status": "paid"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("forbidden role", func() {
		s.service.EXPECT().CreateBill(gomock.Any(), s.actor, gomock.Any()).
			Return(nil, nil, dErrors.New(dErrors.CodeForbidden, "role is not allowed to modify documents"))

		rec := s.do(http.MethodPost, "/bills", map[string]any{"due_date": "2026-07-15", "amount": "1"})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestListBills() {
	s.service.EXPECT().ListBills(gomock.Any(), s.actor, models.ElectionByElection).
		Return([]service.BillView{{Bill: &models.Bill{ID: id.NewBillID()}, Status: models.StatusSent}}, nil)

	rec := s.do(http.MethodGet, "/bills?type=by-election", nil)
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
		Bills []struct {
			Status string `json:"status"`
		} `json:"bills"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(1, resp.Count)
	s.Equal("sent", resp.Bills[0].Status)
}

func (s *HandlerSuite) TestGetBill() {
	s.Run("invalid id", func() {
		rec := s.do(http.MethodGet, "/bills/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("not visible", func() {
		billID := id.NewBillID()
		s.service.EXPECT().GetBill(gomock.Any(), s.actor, billID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "bill not found"))

		rec := s.do(http.MethodGet, "/bills/"+billID.String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestCancelDocument() {
	docID := id.NewDocumentID()

	s.Run("cancelled", func() {
		s.service.EXPECT().CancelDocument(gomock.Any(), s.actor, docID).
			Return(&models.Document{ID: docID, Status: models.StatusCancelled}, nil)

		rec := s.do(http.MethodPost, "/documents/"+docID.String()+"/cancel", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("terminal document conflicts", func() {
		s.service.EXPECT().CancelDocument(gomock.Any(), s.actor, docID).
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot apply cancel_requested to paid"))

		rec := s.do(http.MethodPost, "/documents/"+docID.String()+"/cancel", nil)
		s.Equal(http.StatusConflict, rec.Code)

		var resp map[string]string
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("invalid_transition", resp["error"])
	})
}

func (s *HandlerSuite) TestGetDocument() {
	docID := id.NewDocumentID()
	s.service.EXPECT().GetDocument(gomock.Any(), s.actor, docID).
		Return(&models.Document{ID: docID, Number: "DOC-20260601-0001", Status: models.StatusDelivered}, nil)

	rec := s.do(http.MethodGet, "/documents/"+docID.String(), nil)
	s.Equal(http.StatusOK, rec.Code)
}
