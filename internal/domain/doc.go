// Package domain holds the core types shared by every engine: exchanges,
// market data, arbitrage opportunities and tasks, strategies and their
// trading signals, and the system-wide status singleton.
//
// Types here are plain data. Ownership and mutation rules (who may write
// what, and under which lock) are documented on each type and enforced by
// the packages that hold them, not by domain itself.
package domain
