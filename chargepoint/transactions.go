package chargepoint

import (
	"sync"
	"time"
)

// defaultMeterInterval is the sample period of the session-owned meter timer.
// The fleet manager usually pre-empts it with its own richer loop.
const defaultMeterInterval = 60 * time.Second

// Transaction is one active charging transaction as the central system sees it.
type Transaction struct {
	Id          int
	IdTag       string
	ConnectorId int
	MeterStart  int
	StartedAt   time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// TransactionManager tracks the active transactions of one charge point and
// runs a periodic meter-sample timer per transaction until it is stopped.
type TransactionManager struct {
	mu           sync.Mutex
	transactions map[int]*Transaction
	interval     time.Duration
}

func NewTransactionManager() *TransactionManager {
	return &TransactionManager{
		transactions: make(map[int]*Transaction),
		interval:     defaultMeterInterval,
	}
}

// SetInterval changes the sample period for timers started afterwards.
func (m *TransactionManager) SetInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.interval = interval
	}
}

func (m *TransactionManager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Start registers the transaction and starts its meter timer. The callback
// runs on a dedicated goroutine at every tick until Stop.
func (m *TransactionManager) Start(tx *Transaction, callback func(*Transaction)) {
	tx.stop = make(chan struct{})
	m.mu.Lock()
	m.transactions[tx.Id] = tx
	interval := m.interval
	m.mu.Unlock()

	if callback == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				callback(tx)
			case <-tx.stop:
				return
			}
		}
	}()
}

// Stop clears the meter timer and removes the transaction. Stopping an
// unknown id is a no-op.
func (m *TransactionManager) Stop(transactionId int) {
	m.mu.Lock()
	tx, ok := m.transactions[transactionId]
	if ok {
		delete(m.transactions, transactionId)
	}
	m.mu.Unlock()
	if ok {
		tx.stopOnce.Do(func() { close(tx.stop) })
	}
}

func (m *TransactionManager) StopAll() {
	m.mu.Lock()
	transactions := m.transactions
	m.transactions = make(map[int]*Transaction)
	m.mu.Unlock()
	for _, tx := range transactions {
		tx.stopOnce.Do(func() { close(tx.stop) })
	}
}

func (m *TransactionManager) Get(transactionId int) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[transactionId]
	return tx, ok
}

// FindByConnector returns the active transaction bound to a connector, if any.
func (m *TransactionManager) FindByConnector(connectorId int) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.ConnectorId == connectorId {
			return tx, true
		}
	}
	return nil, false
}

func (m *TransactionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}
