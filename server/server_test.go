package server

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSTM(t *testing.T) *stm.STM {
	s, err := stm.New(stm.DefaultOptions())
	require.NoError(t, err)
	_, err = stm.WriteTransaction(s, func(tx *stm.WriteTxn) stm.Result[struct{}] {
		tx.Store(0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		return stm.Ok(struct{}{})
	})
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s := newTestSTM(t)
	rec := serve(t, NewServer("", s).Handler(), "GET", statusAPI)
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, Status{RegionSize: 512, StripeSize: 8, Stripes: 64, Clock: 1}, status)
}

func TestStats(t *testing.T) {
	s := newTestSTM(t)
	rec := serve(t, NewServer("", s).Handler(), "GET", statsAPI)
	require.Equal(t, http.StatusOK, rec.Code)

	var st stm.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, s.Stats(), st)
	assert.Equal(t, uint64(1), st.WriteCommits)
}

func TestMetrics(t *testing.T) {
	s := newTestSTM(t)
	rec := serve(t, NewServer("", s).Handler(), "GET", metricsAPI)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tinystm_txn_finished_total")
	assert.Contains(t, rec.Body.String(), "tinystm_txn_attempts")
}

func TestRoutes(t *testing.T) {
	h := NewServer("", newTestSTM(t)).Handler()
	assert.Equal(t, http.StatusNotFound, serve(t, h, "GET", "/unknown").Code)
	assert.NotEqual(t, http.StatusOK, serve(t, h, "POST", statusAPI).Code)
}

func TestStartClose(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newTestSTM(t))
	require.NoError(t, srv.Start())
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + statusAPI)
	require.NoError(t, err)
	body, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"clock": 1`)

	require.NoError(t, srv.Close())
	_, err = http.Get("http://" + srv.Addr() + statusAPI)
	assert.Error(t, err)
}

func TestCloseWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer("127.0.0.1:0", newTestSTM(t)).Close())
}
