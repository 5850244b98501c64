package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/swapsettle/pkg/crypto"
	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/script"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
	"github.com/uhyunpark/swapsettle/pkg/storage"
	"github.com/uhyunpark/swapsettle/pkg/util"
)

const start = 5_000

func newTestServer(t *testing.T) (*httptest.Server, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock(time.Unix(start, 0))
	coord := settlement.NewCoordinator(storage.NewMemoryStore(), clock, nil, settlement.DefaultOptions())
	s := NewServer(coord, clock, Config{Network: script.Testnet, ScriptVersion: script.PlutusV3}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, clock
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func submit(t *testing.T, ts *httptest.Server, o order.Order) OrderInfo {
	t.Helper()
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var info OrderInfo
	if code := doJSON(t, "POST", ts.URL+"/api/v1/orders", SubmitOrderRequest{Order: raw}, &info); code != http.StatusOK {
		t.Fatalf("submit order: status %d", code)
	}
	return info
}

func newOrder(t *testing.T) order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Params{
		Maker:         []byte{0xAA, 0x01},
		MakerAmount:   100,
		TakerAmount:   250,
		MinFillAmount: 10,
		Expiry:        start + 600,
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]string
	if code := doJSON(t, "GET", ts.URL+"/health", nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestOrderAndFillEndpoints(t *testing.T) {
	ts, clock := newTestServer(t)
	o := newOrder(t)
	info := submit(t, ts, o)
	if info.Hash != o.Hash().String() || info.Remaining != 100 || info.Rate != "2.5" {
		t.Errorf("submitted order info = %+v", info)
	}

	id := hexutil.Encode(o.OrderID)
	var res FillResult
	code := doJSON(t, "POST", ts.URL+"/api/v1/orders/"+id+"/fills", FillRequest{Taker: "0xbb", Amount: 30}, &res)
	if code != http.StatusOK {
		t.Fatalf("fill status %d", code)
	}
	if res.Fill.FilledTakerAmount != 75 || res.Order.Remaining != 70 || res.Order.Version != 1 {
		t.Errorf("fill result = %+v", res)
	}

	code = doJSON(t, "POST", ts.URL+"/api/v1/orders/"+id+"/fills", FillRequest{Taker: "0xbb", Amount: 80}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("over-capacity fill status = %d, want 422", code)
	}

	// replaying a built fill hits the dedupe check
	code = doJSON(t, "POST", ts.URL+"/api/v1/fills", res.Fill, nil)
	if code != http.StatusConflict {
		t.Errorf("replayed fill status = %d, want 409", code)
	}

	// a pre-built fill must pay at least the order's price
	cheap := res.Fill
	cheap.FillID = order.NewFillID()
	cheap.FilledMakerAmount = 50
	cheap.FilledTakerAmount = 1
	code = doJSON(t, "POST", ts.URL+"/api/v1/fills", cheap, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("underpriced fill status = %d, want 422", code)
	}

	var fills []order.Fill
	if code := doJSON(t, "GET", ts.URL+"/api/v1/orders/"+id+"/fills", nil, &fills); code != http.StatusOK || len(fills) != 1 {
		t.Errorf("fills = %d %+v", code, fills)
	}

	var cands []OrderInfo
	if code := doJSON(t, "GET", ts.URL+"/api/v1/candidates?amount=50", nil, &cands); code != http.StatusOK || len(cands) != 1 {
		t.Errorf("candidates = %d %d", code, len(cands))
	}

	if code := doJSON(t, "GET", ts.URL+"/api/v1/orders/0x0909", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown order status = %d", code)
	}
	if code := doJSON(t, "GET", ts.URL+"/api/v1/orders/zz", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", code)
	}

	clock.Advance(time.Hour)
	var got OrderInfo
	doJSON(t, "GET", ts.URL+"/api/v1/orders/"+id, nil, &got)
	if !got.Expired {
		t.Error("order should report expired")
	}
}

func TestBatchEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	var ids []string
	for i := 0; i < 3; i++ {
		o := newOrder(t)
		submit(t, ts, o)
		ids = append(ids, hexutil.Encode(o.OrderID))
	}

	var b BatchInfo
	if code := doJSON(t, "POST", ts.URL+"/api/v1/batches", CommitBatchRequest{OrderIDs: ids}, &b); code != http.StatusOK {
		t.Fatalf("commit batch status %d", code)
	}
	if b.Count != 3 || b.Root.IsEmpty() {
		t.Fatalf("batch = %+v", b)
	}

	var loaded BatchInfo
	if code := doJSON(t, "GET", ts.URL+"/api/v1/batches/"+b.Root.String(), nil, &loaded); code != http.StatusOK {
		t.Fatalf("get batch status %d", code)
	}
	if loaded.Root != b.Root {
		t.Errorf("loaded root %s, want %s", loaded.Root, b.Root)
	}

	var proof ProofResponse
	if code := doJSON(t, "GET", ts.URL+"/api/v1/batches/"+b.Root.String()+"/proof/2", nil, &proof); code != http.StatusOK {
		t.Fatalf("proof status %d", code)
	}
	if !merkle.VerifyProof(b.Root, loaded.Orders[2], proof.Path) {
		t.Error("served proof does not verify")
	}
	if code := doJSON(t, "GET", ts.URL+"/api/v1/batches/"+b.Root.String()+"/proof/3", nil, nil); code != http.StatusNotFound {
		t.Errorf("out of range proof status = %d", code)
	}

	var v VerifyBatchResponse
	doJSON(t, "POST", ts.URL+"/api/v1/batches/verify", b.Batch, &v)
	if !v.Valid {
		t.Errorf("verify = %+v", v)
	}
	tampered := b.Batch
	tampered.Orders = append([]order.Order(nil), b.Orders...)
	tampered.Orders[0].OrderID = []byte{0x01}
	doJSON(t, "POST", ts.URL+"/api/v1/batches/verify", tampered, &v)
	if v.Valid {
		t.Error("tampered batch verified")
	}

	if code := doJSON(t, "GET", ts.URL+"/api/v1/batches/"+hashing.Digest{1}.String(), nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown batch status = %d", code)
	}
}

func TestAuthorizeEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	receiver, sender := []byte{0x0A}, []byte{0x0B}
	secret := []byte("preimage")
	datum, err := htlc.EncodeDatum(htlc.NewDatum(secret, receiver, 100, false))
	if err != nil {
		t.Fatal(err)
	}
	reveal, _ := htlc.EncodeRedeemer(htlc.Redeemer{Secret: secret})

	tests := []struct {
		name       string
		req        AuthorizeRequest
		authorized bool
		action     htlc.ActionKind
	}{
		{"reveal", AuthorizeRequest{Datum: hexutil.Encode(datum), Redeemer: hexutil.Encode(reveal), Signers: []string{"0x0a"}, Now: 50}, true, htlc.ActionReveal},
		{"reveal unsigned", AuthorizeRequest{Datum: hexutil.Encode(datum), Redeemer: hexutil.Encode(reveal), Signers: []string{"0x0b"}, Now: 50}, false, htlc.ActionReveal},
		{"refund early", AuthorizeRequest{Datum: hexutil.Encode(datum), Signers: []string{"0x0b"}, Now: 100, FirstInputSigner: hexutil.Encode(sender)}, false, htlc.ActionRefund},
		{"refund", AuthorizeRequest{Datum: hexutil.Encode(datum), Signers: []string{"0x0b"}, Now: 101, FirstInputSigner: hexutil.Encode(sender)}, true, htlc.ActionRefund},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp AuthorizeResponse
			if code := doJSON(t, "POST", ts.URL+"/api/v1/htlc/authorize", tt.req, &resp); code != http.StatusOK {
				t.Fatalf("status %d", code)
			}
			if resp.Authorized != tt.authorized || resp.Action != string(tt.action) {
				t.Errorf("resp = %+v", resp)
			}
			if !resp.Authorized && resp.Reason == "" {
				t.Error("rejection without reason")
			}
		})
	}

	if code := doJSON(t, "POST", ts.URL+"/api/v1/htlc/authorize", AuthorizeRequest{Datum: "0x01"}, nil); code != http.StatusBadRequest {
		t.Errorf("malformed datum status = %d", code)
	}
}

func TestLockAndSpendEndpoints(t *testing.T) {
	ts, clock := newTestServer(t)
	sender, _ := crypto.GenerateKey()
	receiver, _ := crypto.GenerateKey()
	secret := []byte("swap secret")

	datum, _ := htlc.EncodeDatum(htlc.NewDatum(secret, receiver.KeyHash(), start+60, false))
	ref := settlement.OutRef{TxHash: hashing.Digest{0x42}, Index: 0}
	var info LockInfo
	code := doJSON(t, "POST", ts.URL+"/api/v1/locks", LockRequest{
		Ref:    ref.String(),
		Datum:  hexutil.Encode(datum),
		Locker: hexutil.Encode(sender.KeyHash()),
	}, &info)
	if code != http.StatusOK || info.Status != string(htlc.StatusLocked) {
		t.Fatalf("lock = %d %+v", code, info)
	}

	// '#' would start a URL fragment
	refPath := url.PathEscape(ref.String())
	spendURL := ts.URL + "/api/v1/locks/" + refPath + "/spend"
	sign := func(s *crypto.Signer, r htlc.Redeemer) string {
		w, err := s.SignMessage(settlement.SpendMessage(ref, r))
		if err != nil {
			t.Fatal(err)
		}
		return hexutil.Encode(w)
	}

	// early refund
	code = doJSON(t, "POST", spendURL, SpendRequest{Witnesses: []string{sign(sender, htlc.Redeemer{})}}, nil)
	if code != http.StatusForbidden {
		t.Errorf("early refund status = %d, want 403", code)
	}

	red, _ := htlc.EncodeRedeemer(htlc.Redeemer{Secret: secret})
	req := SpendRequest{Redeemer: hexutil.Encode(red), Witnesses: []string{sign(receiver, htlc.Redeemer{Secret: secret})}}
	if code := doJSON(t, "POST", spendURL, req, &info); code != http.StatusOK {
		t.Fatalf("reveal status %d", code)
	}
	if info.Status != string(htlc.StatusClaimed) || info.Action != string(htlc.ActionReveal) {
		t.Errorf("after reveal = %+v", info)
	}

	clock.Advance(time.Hour)
	code = doJSON(t, "POST", spendURL, SpendRequest{Witnesses: []string{sign(sender, htlc.Redeemer{})}}, nil)
	if code != http.StatusConflict {
		t.Errorf("second spend status = %d, want 409", code)
	}

	var got LockInfo
	if code := doJSON(t, "GET", ts.URL+"/api/v1/locks/"+refPath, nil, &got); code != http.StatusOK || got.Status != string(htlc.StatusClaimed) {
		t.Errorf("lock state = %d %+v", code, got)
	}
}

func TestScriptEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	var info ScriptInfo
	code := doJSON(t, "POST", ts.URL+"/api/v1/script", ScriptRequest{CompiledCode: "4e4d01000033222220051200120011"}, &info)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if info.Version != "PlutusV3" || !strings.HasPrefix(info.Address, "addr_test1w") || len(info.Hash) != 56 {
		t.Errorf("script info = %+v", info)
	}

	doJSON(t, "POST", ts.URL+"/api/v1/script", ScriptRequest{CompiledCode: "4e4d01000033222220051200120011", Network: "mainnet"}, &info)
	if !strings.HasPrefix(info.Address, "addr1w") {
		t.Errorf("mainnet address = %s", info.Address)
	}
	if code := doJSON(t, "POST", ts.URL+"/api/v1/script", ScriptRequest{CompiledCode: "4e4d", Version: "v9"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad version status = %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{settlement.ErrOrderNotFound, http.StatusNotFound},
		{htlc.ErrAlreadySpent, http.StatusConflict},
		{htlc.ErrUnauthorized, http.StatusForbidden},
		{order.ErrInvalidFill, http.StatusUnprocessableEntity},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
