//go:build linux

package enforcer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/lowdata/blockd/internal/rule"
)

// nftTableName is the nftables table holding all blockd rules. Dropping the
// table removes everything blockd ever programmed.
const nftTableName = "blockd"

// nftChainName is the output-hook chain blockd programs its drops into.
const nftChainName = "output"

// NftablesFilter enforces rules through the Linux nftables subsystem via the
// google/nftables netlink library. It manages a single inet table ("blockd")
// with one output-hook chain, replaced wholesale on every reload.
type NftablesFilter struct {
	known  rule.PortLookup
	logger *slog.Logger
}

// NewNftablesFilter returns a Filter programming nftables directly. known
// resolves application ports; nil means rule.KnownPorts.
func NewNftablesFilter(known rule.PortLookup, logger *slog.Logger) *NftablesFilter {
	if known == nil {
		known = rule.KnownPorts
	}
	return &NftablesFilter{known: known, logger: logger.With("component", "nftables")}
}

// Reload replaces the chain contents with drops for the given rule set.
func (f *NftablesFilter) Reload(_ context.Context, rules []rule.Rule) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("enforcer: nftables: reload: %w", err)
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   nftTableName,
	})
	chain := conn.AddChain(&nftables.Chain{
		Name:     nftChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
	})

	// Replace the chain contents wholesale.
	conn.FlushChain(chain)

	count := 0
	for _, r := range rules {
		for _, spec := range rule.Expand(r, f.known) {
			exprs, err := blockExprs(spec)
			if err != nil {
				return fmt.Errorf("enforcer: nftables: reload: %w", err)
			}
			conn.AddRule(&nftables.Rule{
				Table: table,
				Chain: chain,
				Exprs: exprs,
			})
			count++
		}
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("enforcer: nftables: reload: %w", err)
	}

	f.logger.Debug("nftables rules programmed", "count", count)
	return nil
}

// Flush deletes the blockd table if it exists. Idempotent.
func (f *NftablesFilter) Flush(_ context.Context) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("enforcer: nftables: flush: %w", err)
	}

	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyINet)
	if err != nil {
		return fmt.Errorf("enforcer: nftables: flush: list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name != nftTableName {
			continue
		}
		conn.DelTable(t)
		if err := conn.Flush(); err != nil {
			return fmt.Errorf("enforcer: nftables: flush: %w", err)
		}
		f.logger.Debug("nftables table deleted", "table", nftTableName)
		return nil
	}

	// Table does not exist, nothing to remove.
	return nil
}

// blockExprs converts one block spec into nftables match expressions with a
// drop verdict.
func blockExprs(spec rule.BlockSpec) ([]expr.Any, error) {
	proto, err := protocolNumber(spec.Proto)
	if err != nil {
		return nil, err
	}

	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte{proto},
		},
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       2, // TCP/UDP destination port offset
			Len:          2,
		},
	}

	if spec.From == spec.To {
		exprs = append(exprs, &expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     portBytes(uint16(spec.From)),
		})
	} else {
		exprs = append(exprs,
			&expr.Cmp{
				Op:       expr.CmpOpGte,
				Register: 1,
				Data:     portBytes(uint16(spec.From)),
			},
			&expr.Cmp{
				Op:       expr.CmpOpLte,
				Register: 1,
				Data:     portBytes(uint16(spec.To)),
			},
		)
	}

	exprs = append(exprs,
		&expr.Counter{},
		&expr.Verdict{Kind: expr.VerdictDrop},
	)
	return exprs, nil
}

// protocolNumber maps a protocol string to its IP protocol number.
func protocolNumber(proto string) (byte, error) {
	switch proto {
	case "tcp":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	default:
		return 0, fmt.Errorf("unsupported protocol %q", proto)
	}
}

// portBytes encodes a port number as 2 big-endian bytes for nftables matching.
func portBytes(port uint16) []byte {
	return []byte{byte(port >> 8), byte(port)}
}

// newPlatformFilter selects the native filter backend. On Linux, pf is not
// available, so rules are programmed into nftables; the directive file is
// still written for auditability.
func newPlatformFilter(cfg Config, logger *slog.Logger) Filter {
	return NewNftablesFilter(nil, logger)
}
