package paper

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
)

// Network moves funds between paper venues. Transfers arrive after Delay.
type Network struct {
	mu     sync.Mutex
	delay  time.Duration
	assets *asset.Registry
	owners map[string]*Venue // deposit address -> venue
	now    func() time.Time
}

// NewNetwork creates a network whose transfers settle after delay.
func NewNetwork(delay time.Duration, assets *asset.Registry) *Network {
	if assets == nil {
		assets = asset.DefaultRegistry()
	}
	return &Network{
		delay:  delay,
		assets: assets,
		owners: make(map[string]*Venue),
		now:    time.Now,
	}
}

// Address returns the deterministic deposit address of venueID for symbol.
// EVM assets get a hex address so they pass address validation.
func (n *Network) Address(venueID, symbol string) string {
	a := n.assets.Lookup(symbol)
	sum := sha256.Sum256([]byte(venueID + "/" + a.Symbol()))
	if a.IsEVM() {
		return common.BytesToAddress(sum[:20]).Hex()
	}
	return fmt.Sprintf("paper-%s-%x", a.Symbol(), sum[:8])
}

func (n *Network) register(v *Venue, symbol string) string {
	addr := n.Address(v.ID(), symbol)
	n.mu.Lock()
	n.owners[addr] = v
	n.mu.Unlock()
	return addr
}

// send records the withdrawal on src and a pending deposit on the owner of
// address, net of the asset's withdrawal fee.
func (n *Network) send(src *Venue, symbol string, amount decimal.Decimal, address string) (domain.Transfer, error) {
	n.mu.Lock()
	dst, ok := n.owners[address]
	n.mu.Unlock()
	if !ok {
		return domain.Transfer{}, apperror.New(apperror.CodeInvalidDepositAddress,
			apperror.WithContextf("%s address %s is not known to the paper network", symbol, address))
	}

	fee := n.assets.WithdrawFee(symbol)
	arriving := asset.Format(amount.Sub(fee))
	if !arriving.IsPositive() {
		return domain.Transfer{}, apperror.New(apperror.CodeWithdrawFailed,
			apperror.WithContextf("%s %s does not cover the %s fee", amount, symbol, fee))
	}

	now := n.now()
	txID := uuid.NewString()
	out := domain.Transfer{
		ID:      uuid.NewString(),
		Asset:   asset.Symbol(symbol),
		Amount:  amount,
		Address: address,
		TxID:    txID,
		Status:  domain.TransferPending,
		At:      now,
	}
	in := out
	in.ID = uuid.NewString()
	in.Amount = arriving

	dst.receive(in, now.Add(n.delay))
	return out, nil
}
