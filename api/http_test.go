package api_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RobustRoundRobin/go-dpos/api"
	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/rlpcodec"
	"github.com/RobustRoundRobin/go-dpos/roundstore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = uint64(1600000000000)

type testLogger struct{ t *testing.T }

func (l testLogger) LazyValue(fn func() string) interface{} { return fn() }
func (l testLogger) Trace(msg string, ctx ...interface{})    { l.t.Log(append([]interface{}{msg}, ctx...)...) }
func (l testLogger) Debug(msg string, ctx ...interface{})    { l.t.Log(append([]interface{}{msg}, ctx...)...) }
func (l testLogger) Info(msg string, ctx ...interface{})     { l.t.Log(append([]interface{}{msg}, ctx...)...) }
func (l testLogger) Warn(msg string, ctx ...interface{})     { l.t.Log(append([]interface{}{msg}, ctx...)...) }
func (l testLogger) Crit(msg string, ctx ...interface{}) {
	l.t.Log(append([]interface{}{msg}, ctx...)...)
	panic("crit")
}

type fixture struct {
	t       *testing.T
	engine  *dpos.Engine
	codec   *dpos.CipherCodec
	keys    []*ecdsa.PrivateKey
	pubs    [][]byte
	handler http.Handler
}

func newFixture(t *testing.T, genesis bool) *fixture {
	codec := rlpcodec.NewCodec()
	f := &fixture{t: t, codec: codec}
	for i := 0; i < 3; i++ {
		k, err := ecdsa.GenerateKey(codec.Suite().Curve(), rand.Reader)
		require.NoError(t, err)
		f.keys = append(f.keys, k)
		f.pubs = append(f.pubs, codec.PubMarshal(&k.PublicKey))
	}
	f.engine = dpos.NewEngine(dpos.DefaultConfig, codec, roundstore.NewMemory(),
		dpos.WithLogger(testLogger{t}), dpos.WithInitialMiners(f.pubs))
	t.Cleanup(f.engine.Close)

	if genesis {
		ctx := context.Background()
		txs, err := f.engine.GenerateConsensusTransactions(ctx, &dpos.TriggerInput{
			Pub: f.pubs[0], Behaviour: dpos.InitialConsensus, ReferenceTime: t0}, f.keys[0])
		require.NoError(t, err)
		require.NoError(t, f.engine.ApplyTransaction(ctx, txs[0].Raw, t0))
	}

	f.handler = api.NewHandler(testLogger{t}, api.HTTPServerConfig{
		Engine: f.engine,
		Now:    func() uint64 { return t0 },
	})
	return f
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) get(path string, v interface{}) int {
	rr := f.do("GET", path, nil)
	if rr.Code == http.StatusOK && v != nil {
		require.NoError(f.t, json.Unmarshal(rr.Body.Bytes(), v))
	}
	return rr.Code
}

func (f *fixture) current() *dpos.Round {
	r, err := f.engine.CurrentRound(context.Background())
	require.NoError(f.t, err)
	return r
}

func TestGetRound(t *testing.T) {
	f := newFixture(t, true)
	r := f.current()

	var got map[string]interface{}
	require.Equal(t, http.StatusOK, f.get("/v1/round", &got))
	assert.Equal(t, hexutil.Encode(r.RoundID[:]), got["roundId"])
	assert.Equal(t, float64(1), got["roundNumber"])
	assert.Equal(t, float64(1), got["termNumber"])
	assert.Equal(t, float64(r.ExpiryTime()), got["expiryTime"])

	miners := got["miners"].([]interface{})
	require.Len(t, miners, 3)
	first := miners[0].(map[string]interface{})
	assert.Equal(t, hexutil.Encode(r.Miners[0].Pub), first["pub"])
	assert.NotContains(t, first, "outValue")
}

func TestGetRoundBeforeGenesis(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/round", nil))
	assert.Equal(t, http.StatusNotFound, f.get("/v1/term", nil))
}

func TestGetTerm(t *testing.T) {
	f := newFixture(t, true)

	var got struct {
		TermNumber uint64          `json:"termNumber"`
		StartTime  uint64          `json:"startTime"`
		Miners     []hexutil.Bytes `json:"miners"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/term", &got))
	assert.Equal(t, uint64(1), got.TermNumber)
	assert.Equal(t, t0, got.StartTime)
	assert.Len(t, got.Miners, 3)
}

func TestGetRoundByNumber(t *testing.T) {
	f := newFixture(t, true)

	var got map[string]interface{}
	require.Equal(t, http.StatusOK, f.get("/v1/rounds/1/1", &got))
	assert.Equal(t, float64(1), got["roundNumber"])

	assert.Equal(t, http.StatusNotFound, f.get("/v1/rounds/1/2", nil))
	assert.Equal(t, http.StatusNotFound, f.get("/v1/rounds/one/1", nil))
}

func TestGetCommand(t *testing.T) {
	f := newFixture(t, true)
	r := f.current()

	type command struct {
		Miner               bool   `json:"miner"`
		Behaviour           string `json:"behaviour"`
		NextBlockMiningLeft int64  `json:"nextBlockMiningLeft"`
		LimitOfMiningBlock  uint64 `json:"limitOfMiningBlock"`
		Hint                struct {
			Encoded hexutil.Bytes `json:"encoded"`
		} `json:"hint"`
	}

	second := hexutil.Encode(r.Miners[1].Pub)

	var cmd command
	require.Equal(t, http.StatusOK, f.get("/v1/command/"+second, &cmd))
	assert.True(t, cmd.Miner)
	assert.Equal(t, "UpdateValue", cmd.Behaviour)
	assert.Equal(t, int64(r.MiningInterval), cmd.NextBlockMiningLeft)
	assert.Len(t, cmd.Hint.Encoded, dpos.HintLen)

	cmd = command{}
	path := fmt.Sprintf("/v1/command/%s?at=%d", second, r.ExpiryTime()+r.MiningInterval*2)
	require.Equal(t, http.StatusOK, f.get(path, &cmd))
	assert.Equal(t, "NextRound", cmd.Behaviour)
	assert.Equal(t, r.MiningInterval, cmd.LimitOfMiningBlock)

	k, err := ecdsa.GenerateKey(f.codec.Suite().Curve(), rand.Reader)
	require.NoError(t, err)
	cmd = command{}
	require.Equal(t, http.StatusOK, f.get("/v1/command/"+hexutil.Encode(f.codec.PubMarshal(&k.PublicKey)), &cmd))
	assert.False(t, cmd.Miner)
	assert.Equal(t, "Nothing", cmd.Behaviour)

	assert.Equal(t, http.StatusBadRequest, f.get("/v1/command/0x1234", nil))
	assert.Equal(t, http.StatusBadRequest, f.get("/v1/command/nothex", nil))
	assert.Equal(t, http.StatusBadRequest, f.get("/v1/command/"+second+"?at=soon", nil))
}

func TestDecodeHint(t *testing.T) {
	f := newFixture(t, true)
	r := f.current()

	post := func(hint []byte) (int, map[string]interface{}) {
		body, err := json.Marshal(map[string]interface{}{"hint": hexutil.Bytes(hint)})
		require.NoError(t, err)
		rr := f.do("POST", "/v1/hint/decode", body)
		var got map[string]interface{}
		if rr.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		}
		return rr.Code, got
	}

	code, got := post(dpos.HintFor(dpos.UpdateValue, r).Encode())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UpdateValue", got["behaviour"])
	assert.Equal(t, true, got["current"])

	stale := dpos.HintFor(dpos.UpdateValue, r)
	stale.RoundNumber++
	code, got = post(stale.Encode())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, got["current"])
	assert.Contains(t, got["reason"], "RoundIdMismatch")

	code, _ = post([]byte{0xD5, 1})
	assert.Equal(t, http.StatusBadRequest, code)

	rr := f.do("POST", "/v1/hint/decode", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do("GET", "/v1/hint/decode", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHTTPServerStopsWithContext(t *testing.T) {
	f := newFixture(t, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := api.NewHTTPServer(ctx, testLogger{t}, api.HTTPServerConfig{Listener: ln, Engine: f.engine})

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/round")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	srv.Wait()
}
