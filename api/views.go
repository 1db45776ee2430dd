package api

import (
	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// The json views render hashes and keys as 0x hex. A zero hash is omitted.

type slotView struct {
	Pub                hexutil.Bytes `json:"pub"`
	NodeID             string        `json:"nodeId"`
	Order              uint64        `json:"order"`
	ExpectedMiningTime uint64        `json:"expectedMiningTime"`
	ActualMiningTime   uint64        `json:"actualMiningTime,omitempty"`
	OutValue           string        `json:"outValue,omitempty"`
	Signature          string        `json:"signature,omitempty"`
	PreviousOutValue   string        `json:"previousOutValue,omitempty"`
	CommitTerm         uint64        `json:"commitTerm,omitempty"`
	CommitRound        uint64        `json:"commitRound,omitempty"`
	PreviousInValue    string        `json:"previousInValue,omitempty"`
	ProducedBlocks     uint64        `json:"producedBlocks"`
	MissedTimeSlots    uint64        `json:"missedTimeSlots"`
}

type roundView struct {
	RoundID            string     `json:"roundId"`
	TermNumber         uint64     `json:"termNumber"`
	RoundNumber        uint64     `json:"roundNumber"`
	MiningInterval     uint64     `json:"miningInterval"`
	Seed               string     `json:"seed,omitempty"`
	TermStartTime      uint64     `json:"termStartTime"`
	Revision           uint64     `json:"revision"`
	StartTime          uint64     `json:"startTime"`
	ExpiryTime         uint64     `json:"expiryTime"`
	ExtraBlockProducer uint64     `json:"extraBlockProducer"`
	Miners             []slotView `json:"miners"`
}

type termView struct {
	TermNumber uint64          `json:"termNumber"`
	StartTime  uint64          `json:"startTime"`
	Miners     []hexutil.Bytes `json:"miners"`
}

type commandView struct {
	Miner               bool     `json:"miner"`
	Behaviour           string   `json:"behaviour"`
	Hint                hintView `json:"hint"`
	NextBlockMiningLeft int64    `json:"nextBlockMiningLeft"`
	LimitOfMiningBlock  uint64   `json:"limitOfMiningBlock"`
	ExpectedMiningTime  uint64   `json:"expectedMiningTime"`
}

type hintView struct {
	Behaviour   string        `json:"behaviour"`
	TermNumber  uint64        `json:"termNumber"`
	RoundNumber uint64        `json:"roundNumber"`
	RoundID     string        `json:"roundId"`
	Encoded     hexutil.Bytes `json:"encoded"`
}

type hintRequest struct {
	Hint hexutil.Bytes `json:"hint"`
}

// hintResponse reports the decoded hint and whether it names the current
// round of this node
type hintResponse struct {
	hintView
	Current bool   `json:"current"`
	Reason  string `json:"reason,omitempty"`
}

func hexHash(h dpos.Hash) string {
	if h.IsZero() {
		return ""
	}
	return hexutil.Encode(h[:])
}

func newRoundView(r *dpos.Round) *roundView {
	v := &roundView{
		RoundID:            hexHash(r.RoundID),
		TermNumber:         r.TermNumber,
		RoundNumber:        r.RoundNumber,
		MiningInterval:     r.MiningInterval,
		Seed:               hexHash(r.Seed),
		TermStartTime:      r.TermStartTime,
		Revision:           r.Revision,
		StartTime:          r.StartTime(),
		ExpiryTime:         r.ExpiryTime(),
		ExtraBlockProducer: r.ExtraBlockProducer(),
		Miners:             make([]slotView, len(r.Miners)),
	}
	for i, s := range r.Miners {
		v.Miners[i] = slotView{
			Pub:                s.Pub,
			NodeID:             hexHash(s.NodeID),
			Order:              s.Order,
			ExpectedMiningTime: s.ExpectedMiningTime,
			ActualMiningTime:   s.ActualMiningTime,
			OutValue:           hexHash(s.OutValue),
			Signature:          hexHash(s.Signature),
			PreviousOutValue:   hexHash(s.PreviousOutValue),
			CommitTerm:         s.CommitTerm,
			CommitRound:        s.CommitRound,
			PreviousInValue:    hexHash(s.PreviousInValue),
			ProducedBlocks:     s.ProducedBlocks,
			MissedTimeSlots:    s.MissedTimeSlots,
		}
	}
	return v
}

func newTermView(t *dpos.Term) *termView {
	v := &termView{TermNumber: t.Number, StartTime: t.StartTime, Miners: make([]hexutil.Bytes, len(t.Miners))}
	for i, m := range t.Miners {
		v.Miners[i] = m
	}
	return v
}

func newHintView(h dpos.Hint) hintView {
	return hintView{
		Behaviour:   h.Behaviour.String(),
		TermNumber:  h.TermNumber,
		RoundNumber: h.RoundNumber,
		RoundID:     hexHash(h.RoundID),
		Encoded:     h.Encode(),
	}
}

func newCommandView(cmd dpos.ConsensusCommand, miner bool) *commandView {
	return &commandView{
		Miner:               miner,
		Behaviour:           cmd.Behaviour.String(),
		Hint:                newHintView(cmd.Hint),
		NextBlockMiningLeft: cmd.NextBlockMiningLeft,
		LimitOfMiningBlock:  cmd.LimitOfMiningBlock,
		ExpectedMiningTime:  cmd.ExpectedMiningTime,
	}
}
