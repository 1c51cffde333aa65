package bill

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"billtrack/internal/billing/models"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
)

type BillStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	base  time.Time
}

func TestBillStoreSuite(t *testing.T) {
	suite.Run(t, new(BillStoreSuite))
}

func (s *BillStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.base = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
}

func (s *BillStoreSuite) newBill(number string, owner id.UserID, et models.ElectionType, offset time.Duration) *models.Bill {
	return &models.Bill{
		ID:           id.NewBillID(),
		Number:       number,
		ElectionType: et,
		ElectionName: "name",
		Amount:       decimal.NewFromInt(10),
		CreatedBy:    owner,
		CreatedAt:    s.base.Add(offset),
	}
}

func (s *BillStoreSuite) TestCreateAndFind() {
	b := s.newBill("BILL-1", id.NewUserID(), models.ElectionByElection, 0)
	s.Require().NoError(s.store.Create(s.ctx, b))

	found, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("BILL-1", found.Number)

	_, err = s.store.FindByID(s.ctx, id.NewBillID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	dup := s.newBill("BILL-1", id.NewUserID(), models.ElectionByElection, 0)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
}

func (s *BillStoreSuite) TestListFiltersAndOrders() {
	alice, bob := id.NewUserID(), id.NewUserID()
	s.Require().NoError(s.store.Create(s.ctx, s.newBill("BILL-1", alice, models.ElectionByElection, 0)))
	s.Require().NoError(s.store.Create(s.ctx, s.newBill("BILL-2", bob, models.ElectionProjectElection, time.Minute)))
	s.Require().NoError(s.store.Create(s.ctx, s.newBill("BILL-3", alice, models.ElectionProjectElection, 2*time.Minute)))

	s.Run("all newest first", func() {
		all, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal("BILL-3", all[0].Number)
		s.Equal("BILL-1", all[2].Number)
	})

	s.Run("by owner", func() {
		mine, err := s.store.List(s.ctx, Filter{CreatedBy: alice})
		s.Require().NoError(err)
		s.Len(mine, 2)
	})

	s.Run("by owner and type", func() {
		mine, err := s.store.List(s.ctx, Filter{CreatedBy: alice, ElectionType: models.ElectionProjectElection})
		s.Require().NoError(err)
		s.Require().Len(mine, 1)
		s.Equal("BILL-3", mine[0].Number)
	})

	s.Run("limit", func() {
		page, err := s.store.List(s.ctx, Filter{Limit: 1})
		s.Require().NoError(err)
		s.Len(page, 1)
	})
}
