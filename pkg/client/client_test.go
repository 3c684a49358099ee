package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Legion {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Project: "plant-a"})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "/relative"})
	assert.Error(t, err)
}

func TestDoRequestSetsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "other", r.Header.Get("X-Legion-Project"))
		assert.Equal(t, "/v3/token/inspect", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]string{"subject": "connector"})
	})

	require.NoError(t, c.ValidateConnection(WithProject(context.Background(), "other")))
}

type staticTokens string

func (s staticTokens) GetAccessToken(context.Context) (string, error) { return string(s), nil }

func TestTokenManagerTakesPrecedence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", TokenManager: staticTokens("oauth-token")})
	require.NoError(t, err)
	require.NoError(t, c.ValidateConnection(context.Background()))
}

func TestAPIErrorParsing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "invalid_request",
				"message": "bad filter",
				"missing": []map[string]string{{"external_id": "rev-1"}},
			},
		})
	})

	err := c.ValidateConnection(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request", apiErr.Code)
	assert.Equal(t, "bad filter", apiErr.Message)
	assert.Equal(t, []string{"rev-1"}, apiErr.Missing)
	assert.True(t, IsNotFound(err))
}

func TestAPIErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable\n"))
	})

	err := c.ValidateConnection(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestListRunsFollowsCursor(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/simulators/runs/list", r.URL.Path)
		var req models.ListRunsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.RunStatusReady, req.Filter.Status)
		calls++

		if req.Cursor == nil {
			next := "page-2"
			writeJSON(t, w, http.StatusOK, models.NewPaginatedResponse([]models.SimulationRun{{ID: 1}}, &next))
			return
		}
		assert.Equal(t, "page-2", *req.Cursor)
		writeJSON(t, w, http.StatusOK, models.NewPaginatedResponse([]models.SimulationRun{{ID: 2}}, nil))
	})

	runs, err := c.ListRuns(context.Background(), models.RunFilter{Status: models.RunStatusReady})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(1), runs[0].ID)
	assert.Equal(t, int64(2), runs[1].ID)
}

func TestUpdateSimulationRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body models.ItemsResponse[models.UpdateRunRequest]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		item := body.Items[0]
		writeJSON(t, w, http.StatusOK, models.ItemsResponse[models.SimulationRun]{
			Items: []models.SimulationRun{{ID: item.ID, Status: item.Status}},
		})
	})

	run, err := c.UpdateSimulationRun(context.Background(), &models.UpdateRunRequest{ID: 7, Status: models.RunStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.ID)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}

func TestGetRoutineRevisionNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/simulators/routines/revisions/byids", r.URL.Path)
		writeJSON(t, w, http.StatusOK, models.ItemsResponse[models.RoutineRevision]{})
	})

	rev, err := c.GetRoutineRevision(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestGetModelRevisionNotFoundStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]interface{}{"code": "not_found", "message": "no such revision"},
		})
	})

	rev, err := c.GetModelRevision(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestCreateTimeSeriesRetrievesDuplicates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/timeseries":
			var body models.ItemsResponse[models.TimeSeriesCreate]
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if len(body.Items) == 2 {
				writeJSON(t, w, http.StatusConflict, map[string]interface{}{
					"error": map[string]interface{}{
						"code":       "duplicated",
						"message":    "already exists",
						"duplicated": []map[string]string{{"external_id": "ts-old"}},
					},
				})
				return
			}
			require.Len(t, body.Items, 1)
			writeJSON(t, w, http.StatusOK, models.ItemsResponse[models.TimeSeries]{
				Items: []models.TimeSeries{{ID: 2, ExternalID: body.Items[0].ExternalID}},
			})
		case "/v3/timeseries/byids":
			writeJSON(t, w, http.StatusOK, models.ItemsResponse[models.TimeSeries]{
				Items: []models.TimeSeries{{ID: 1, ExternalID: "ts-old"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	series, err := c.CreateTimeSeries(context.Background(), []models.TimeSeriesCreate{
		{ExternalID: "ts-old"},
		{ExternalID: "ts-new"},
	})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "ts-new", series[0].ExternalID)
	assert.Equal(t, "ts-old", series[1].ExternalID)
}

func TestDownloadFile(t *testing.T) {
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/files/42/download-link":
			writeJSON(t, w, http.StatusOK, map[string]string{"download_url": srvURL + "/blob/42"})
		case "/blob/42":
			_, _ = w.Write([]byte("model-content"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srvURL = c.baseURL

	var buf bytes.Buffer
	n, err := c.DownloadFile(context.Background(), 42, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("model-content")), n)
	assert.Equal(t, "model-content", buf.String())
}

func TestRetrieveAggregatesEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, models.ItemsResponse[models.DataPointList]{})
	})

	list, err := c.RetrieveAggregates(context.Background(), models.AggregateQuery{ExternalID: "flow"})
	require.NoError(t, err)
	assert.Equal(t, "flow", list.ExternalID)
	assert.Empty(t, list.DataPoints)
}
