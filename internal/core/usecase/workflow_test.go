package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

type wfSolRepoFake struct {
	sols []domain.Solicitation
}

func (f *wfSolRepoFake) Create(context.Context, *domain.Solicitation) error {
	return errors.New("not implemented")
}

func (f *wfSolRepoFake) GetByID(_ context.Context, id string) (*domain.Solicitation, error) {
	for i := range f.sols {
		if f.sols[i].ID == id {
			s := f.sols[i]
			return &s, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get solicitation", errors.New("no rows"))
}

func (f *wfSolRepoFake) FindByNumber(_ context.Context, number string) (*domain.Solicitation, error) {
	for i := range f.sols {
		if f.sols[i].SolicitationNumber == number {
			s := f.sols[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *wfSolRepoFake) FindByExternalMessageID(context.Context, string) (*domain.Solicitation, error) {
	return nil, nil
}

func (f *wfSolRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return errors.New("not implemented")
}

func (f *wfSolRepoFake) SaveFields(context.Context, string, domain.ExtractedFields) error {
	return errors.New("not implemented")
}

func (f *wfSolRepoFake) List(context.Context) ([]domain.Solicitation, error) {
	return f.sols, nil
}

type wfOrderRepoFake struct {
	orders  []domain.Order
	orphans []domain.Order
}

func (f *wfOrderRepoFake) Create(context.Context, *domain.Order) error {
	return errors.New("not implemented")
}

func (f *wfOrderRepoFake) GetByID(_ context.Context, id string) (*domain.Order, error) {
	for i := range f.orders {
		if f.orders[i].ID == id {
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get order", errors.New("no rows"))
}

func (f *wfOrderRepoFake) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	for i := range f.orders {
		if f.orders[i].OrderNumber == number {
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, nil
}

func (f *wfOrderRepoFake) FindByExternalMessageID(context.Context, string) (*domain.Order, error) {
	return nil, nil
}

func (f *wfOrderRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return errors.New("not implemented")
}

func (f *wfOrderRepoFake) SaveFields(context.Context, string, domain.ExtractedFields) error {
	return errors.New("not implemented")
}

func (f *wfOrderRepoFake) UpdateFulfillmentStatus(context.Context, string, domain.FulfillmentStatus) error {
	return errors.New("not implemented")
}

func (f *wfOrderRepoFake) ListOrphans(context.Context) ([]domain.Order, error) {
	return f.orphans, nil
}

func (f *wfOrderRepoFake) ListWithLegacyRef(context.Context) ([]domain.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *wfOrderRepoFake) ListByLegacyRef(_ context.Context, solicitationID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.LegacySolicitationID == solicitationID {
			out = append(out, o)
		}
	}
	return out, nil
}

type wfLinkRepoFake struct {
	// pairs maps order id -> solicitation ids.
	pairs  map[string][]string
	orders *wfOrderRepoFake
	sols   *wfSolRepoFake
}

func (f *wfLinkRepoFake) Link(context.Context, string, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *wfLinkRepoFake) Exists(context.Context, string, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *wfLinkRepoFake) OrdersForSolicitation(ctx context.Context, solicitationID string) ([]domain.Order, error) {
	var out []domain.Order
	for orderID, solIDs := range f.pairs {
		for _, solID := range solIDs {
			if solID == solicitationID {
				o, err := f.orders.GetByID(ctx, orderID)
				if err != nil {
					return nil, err
				}
				out = append(out, *o)
			}
		}
	}
	return out, nil
}

func (f *wfLinkRepoFake) SolicitationsForOrder(ctx context.Context, orderID string) ([]domain.Solicitation, error) {
	var out []domain.Solicitation
	for _, solID := range f.pairs[orderID] {
		s, err := f.sols.GetByID(ctx, solID)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

type wfQuoteRepoFake struct {
	quotes map[string]*domain.Quote
}

func (f *wfQuoteRepoFake) GetBySolicitation(_ context.Context, solicitationID string) (*domain.Quote, error) {
	return f.quotes[solicitationID], nil
}

func (f *wfQuoteRepoFake) Save(context.Context, *domain.Quote) error {
	return errors.New("not implemented")
}

type wfFulfillRepoFake struct {
	records map[string][]domain.FulfillmentRecord
}

func (f *wfFulfillRepoFake) Add(context.Context, *domain.FulfillmentRecord) error {
	return errors.New("not implemented")
}

func (f *wfFulfillRepoFake) ListByOrder(_ context.Context, orderID string) ([]domain.FulfillmentRecord, error) {
	return f.records[orderID], nil
}

type wfFixture struct {
	sols    *wfSolRepoFake
	orders  *wfOrderRepoFake
	quotes  *wfQuoteRepoFake
	fulfill *wfFulfillRepoFake
	links   *wfLinkRepoFake
}

func newWFFixture() *wfFixture {
	sols := &wfSolRepoFake{}
	orders := &wfOrderRepoFake{}
	return &wfFixture{
		sols:    sols,
		orders:  orders,
		quotes:  &wfQuoteRepoFake{quotes: make(map[string]*domain.Quote)},
		fulfill: &wfFulfillRepoFake{records: make(map[string][]domain.FulfillmentRecord)},
		links:   &wfLinkRepoFake{pairs: make(map[string][]string), orders: orders, sols: sols},
	}
}

func (fx *wfFixture) usecase() *WorkflowUseCase {
	uc := NewWorkflowUseCase(fx.sols, fx.orders, fx.quotes, fx.fulfill, fx.links, domain.NewStatusEngine(0))
	uc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return uc
}

func TestGetWorkflowResolvesSolicitationNumberFirst(t *testing.T) {
	fx := newWFFixture()
	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx.sols.sols = []domain.Solicitation{{
		ID:                 "sol-1",
		SolicitationNumber: "SPE4A7-26-Q-0101",
		ReceivedAt:         received,
	}}

	record, err := fx.usecase().GetWorkflow(context.Background(), "SPE4A7-26-Q-0101")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if record.Status != domain.StateRFQReceived {
		t.Fatalf("expected rfq_received, got %s", record.Status)
	}
	if record.Solicitation == nil || record.Solicitation.ID != "sol-1" {
		t.Fatalf("expected solicitation sol-1, got %+v", record.Solicitation)
	}
	if len(record.LinkedSolicitations) != 1 {
		t.Fatalf("expected self in linked solicitations, got %d", len(record.LinkedSolicitations))
	}
}

func TestGetWorkflowSymmetricAcrossDirections(t *testing.T) {
	fx := newWFFixture()
	fx.sols.sols = []domain.Solicitation{{
		ID:                 "sol-1",
		SolicitationNumber: "SPE4A7-26-Q-0101",
		ReceivedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	fx.orders.orders = []domain.Order{{
		ID:                "ord-1",
		OrderNumber:       "SPE4A7-26-P-2210",
		FulfillmentStatus: domain.FulfillmentPending,
		ReceivedAt:        time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}
	fx.links.pairs["ord-1"] = []string{"sol-1"}
	fx.quotes.quotes["sol-1"] = &domain.Quote{
		ID:             "q-1",
		SolicitationID: "sol-1",
		Status:         domain.QuoteSubmitted,
	}
	uc := fx.usecase()

	bySol, err := uc.GetWorkflow(context.Background(), "SPE4A7-26-Q-0101")
	if err != nil {
		t.Fatalf("GetWorkflow(sol) error = %v", err)
	}
	byOrder, err := uc.GetWorkflow(context.Background(), "SPE4A7-26-P-2210")
	if err != nil {
		t.Fatalf("GetWorkflow(order) error = %v", err)
	}

	if bySol.Status != domain.StatePOReceived || byOrder.Status != domain.StatePOReceived {
		t.Fatalf("expected po_received from both directions, got %s / %s", bySol.Status, byOrder.Status)
	}
	if byOrder.Solicitation == nil || byOrder.Solicitation.ID != "sol-1" {
		t.Fatalf("expected order lookup to pivot to solicitation, got %+v", byOrder.Solicitation)
	}
	if bySol.PrimaryOrder == nil || bySol.PrimaryOrder.ID != "ord-1" {
		t.Fatalf("expected primary order ord-1, got %+v", bySol.PrimaryOrder)
	}
}

func TestGetWorkflowFallsBackToRawID(t *testing.T) {
	fx := newWFFixture()
	fx.sols.sols = []domain.Solicitation{{ID: "sol-1", ReceivedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}

	record, err := fx.usecase().GetWorkflow(context.Background(), "sol-1")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if record.Solicitation == nil || record.Solicitation.ID != "sol-1" {
		t.Fatalf("expected raw id resolution, got %+v", record.Solicitation)
	}
}

func TestGetWorkflowUnknownIdentifier(t *testing.T) {
	fx := newWFFixture()

	_, err := fx.usecase().GetWorkflow(context.Background(), "nope")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	_, err = fx.usecase().GetWorkflow(context.Background(), "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input error, got %v", err)
	}
}

func TestPrimaryOrderIsMostRecent(t *testing.T) {
	fx := newWFFixture()
	fx.sols.sols = []domain.Solicitation{{
		ID:                 "sol-1",
		SolicitationNumber: "SPE4A7-26-Q-0101",
		ReceivedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	fx.orders.orders = []domain.Order{
		{ID: "ord-old", FulfillmentStatus: domain.FulfillmentShipped, CreatedAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "ord-new", FulfillmentStatus: domain.FulfillmentPending, CreatedAt: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)},
	}
	fx.links.pairs["ord-old"] = []string{"sol-1"}
	fx.links.pairs["ord-new"] = []string{"sol-1"}

	record, err := fx.usecase().GetWorkflow(context.Background(), "SPE4A7-26-Q-0101")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if record.PrimaryOrder == nil || record.PrimaryOrder.ID != "ord-new" {
		t.Fatalf("expected most recent order primary, got %+v", record.PrimaryOrder)
	}
	if len(record.LinkedOrders) != 2 {
		t.Fatalf("expected both orders linked, got %d", len(record.LinkedOrders))
	}
}

func TestListWorkflowsIncludesOrphanOrders(t *testing.T) {
	fx := newWFFixture()
	fx.sols.sols = []domain.Solicitation{{
		ID:         "sol-1",
		ReceivedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	orphan := domain.Order{
		ID:                "ord-orphan",
		FulfillmentStatus: domain.FulfillmentPending,
		ReceivedAt:        time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
	}
	fx.orders.orders = []domain.Order{orphan}
	fx.orders.orphans = []domain.Order{orphan}

	records, err := fx.usecase().ListWorkflows(context.Background(), ports.WorkflowQuery{})
	if err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Orphan received most recently, so it sorts first.
	if records[0].PrimaryOrder == nil || records[0].PrimaryOrder.ID != "ord-orphan" {
		t.Fatalf("expected orphan first by recency, got %+v", records[0].PrimaryOrder)
	}
	if records[0].Status != domain.StatePOReceived {
		t.Fatalf("expected orphan status po_received, got %s", records[0].Status)
	}
	if records[0].Solicitation != nil {
		t.Fatalf("orphan record must carry no solicitation")
	}
}

func TestListWorkflowsFilterAndPaging(t *testing.T) {
	fx := newWFFixture()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx.sols.sols = []domain.Solicitation{
		{ID: "sol-1", ReceivedAt: base},
		{ID: "sol-2", ReceivedAt: base.Add(24 * time.Hour)},
		{ID: "sol-3", ReceivedAt: base.Add(48 * time.Hour)},
	}

	records, err := fx.usecase().ListWorkflows(context.Background(), ports.WorkflowQuery{
		Status: string(domain.StateRFQReceived),
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected limit applied, got %d", len(records))
	}
	if records[0].Solicitation.ID != "sol-3" || records[1].Solicitation.ID != "sol-2" {
		t.Fatalf("expected recency-descending order, got %s then %s",
			records[0].Solicitation.ID, records[1].Solicitation.ID)
	}

	offset, err := fx.usecase().ListWorkflows(context.Background(), ports.WorkflowQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListWorkflows() offset error = %v", err)
	}
	if len(offset) != 1 || offset[0].Solicitation.ID != "sol-1" {
		t.Fatalf("expected last page with sol-1, got %+v", offset)
	}

	_, err = fx.usecase().ListWorkflows(context.Background(), ports.WorkflowQuery{Status: "bogus"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input for unknown status, got %v", err)
	}
}

func TestListWorkflowsLegacyOnlyOrderIsLinked(t *testing.T) {
	fx := newWFFixture()
	fx.sols.sols = []domain.Solicitation{{
		ID:         "sol-1",
		ReceivedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	fx.orders.orders = []domain.Order{{
		ID:                   "ord-legacy",
		LegacySolicitationID: "sol-1",
		FulfillmentStatus:    domain.FulfillmentVerified,
		ReceivedAt:           time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}
	fx.quotes.quotes["sol-1"] = &domain.Quote{
		ID:             "q-1",
		SolicitationID: "sol-1",
		Status:         domain.QuoteSubmitted,
	}

	records, err := fx.usecase().ListWorkflows(context.Background(), ports.WorkflowQuery{})
	if err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected single record, got %d", len(records))
	}
	if records[0].PrimaryOrder == nil || records[0].PrimaryOrder.ID != "ord-legacy" {
		t.Fatalf("expected legacy order attached via legacy reference, got %+v", records[0].PrimaryOrder)
	}
	if records[0].Status != domain.StateVerified {
		t.Fatalf("expected verified, got %s", records[0].Status)
	}
}
