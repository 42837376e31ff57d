package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var (
	testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	day     = 24 * time.Hour
)

func clock() time.Time { return testNow }

func at(d time.Duration) valueobject.RawTime {
	return valueobject.TimeOf(testNow.Add(d))
}

func amt(s string) valueobject.RawAmount {
	return valueobject.RawAmount(s)
}

// memoryStore backs all three fake repositories
type memoryStore struct {
	mu       sync.Mutex
	bills    map[string]ledger.Bill
	payments map[string]ledger.Payment
	returns  []ledger.Return

	billErr    error
	paymentErr error
	returnErr  error
	saveErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bills:    make(map[string]ledger.Bill),
		payments: make(map[string]ledger.Payment),
	}
}

func (m *memoryStore) addBill(b ledger.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[b.ID] = b
}

func (m *memoryStore) addPayment(p ledger.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
}

func (m *memoryStore) addReturn(r ledger.Return) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returns = append(m.returns, r)
}

func (m *memoryStore) bill(id string) ledger.Bill {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bills[id]
}

func (m *memoryStore) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

type fakeBillRepo struct{ s *memoryStore }

func (r fakeBillRepo) FindByCustomer(ctx context.Context, customerID string) ([]ledger.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.billErr != nil {
		return nil, r.s.billErr
	}
	var out []ledger.Bill
	for _, b := range r.s.bills {
		if b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeBillRepo) FindByID(_ context.Context, id string) (*ledger.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bills[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r fakeBillRepo) AdjustAmountPaid(_ context.Context, id string, delta decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bills[id]
	if !ok {
		return errors.New("bill missing")
	}
	b.AmountPaid = valueobject.AmountOf(b.AmountPaid.Decimal().Add(delta))
	r.s.bills[id] = b
	return nil
}

type fakePaymentRepo struct{ s *memoryStore }

func (r fakePaymentRepo) FindByCustomer(_ context.Context, customerID string) ([]ledger.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.paymentErr != nil {
		return nil, r.s.paymentErr
	}
	var out []ledger.Payment
	for _, p := range r.s.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakePaymentRepo) FindByID(_ context.Context, id string) (*ledger.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r fakePaymentRepo) Save(_ context.Context, p *ledger.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.saveErr != nil {
		return r.s.saveErr
	}
	r.s.payments[p.ID] = *p
	return nil
}

func (r fakePaymentRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.payments, id)
	return nil
}

type fakeReturnRepo struct{ s *memoryStore }

func (r fakeReturnRepo) FindByCustomer(_ context.Context, customerID string) ([]ledger.Return, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.returnErr != nil {
		return nil, r.s.returnErr
	}
	var out []ledger.Return
	for _, ret := range r.s.returns {
		if ret.CustomerID == customerID {
			out = append(out, ret)
		}
	}
	return out, nil
}

func newTestLedgerService(s *memoryStore, opts ...LedgerServiceOption) *LedgerService {
	opts = append([]LedgerServiceOption{
		WithEngine(ledger.NewEngine(ledger.WithClock(clock))),
	}, opts...)
	return NewLedgerService(fakeBillRepo{s}, fakePaymentRepo{s}, fakeReturnRepo{s}, opts...)
}

func newTestPaymentService(s *memoryStore) *PaymentService {
	ids := 0
	return NewPaymentService(
		NewNoOpTransactionScope(fakeBillRepo{s}, fakePaymentRepo{s}),
		newTestLedgerService(s),
		WithPaymentClock(clock),
		WithIDGenerator(func() string {
			ids++
			return "pay-" + string(rune('a'+ids-1))
		}),
	)
}
