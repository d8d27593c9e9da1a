package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerIsolation(t *testing.T) {
	requireServer(t)
	client := newClient()

	aliceToken := mintToken(t, uuid.New())
	bobToken := mintToken(t, uuid.New())

	// Алиса создаёт сессию
	createPayload := map[string]interface{}{
		"file_name":  "private.bin",
		"total_size": 2097152,
		"chunk_size": 1048576,
	}

	createBody, _ := json.Marshal(createPayload)
	req, _ := http.NewRequest("POST", baseURL+"/v1/uploads", bytes.NewBuffer(createBody))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var session struct {
		ID string `json:"id"`
	}
	body, _ := io.ReadAll(resp.Body)
	json.Unmarshal(body, &session)
	resp.Body.Close()
	require.NotEmpty(t, session.ID)

	// Список Боба пуст
	req, _ = http.NewRequest("GET", baseURL+"/v1/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Uploads []json.RawMessage `json:"uploads"`
	}
	body, _ = io.ReadAll(resp.Body)
	json.Unmarshal(body, &list)
	resp.Body.Close()

	assert.Empty(t, list.Uploads)

	// Чужая сессия выглядит несуществующей
	req, _ = http.NewRequest("GET", fmt.Sprintf("%s/v1/uploads/%s/progress", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	req, _ = http.NewRequest("DELETE", fmt.Sprintf("%s/v1/uploads/%s", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Запрос без токена отклоняется до обработчика
	req, _ = http.NewRequest("GET", baseURL+"/v1/uploads", nil)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Алиса убирает за собой
	req, _ = http.NewRequest("DELETE", fmt.Sprintf("%s/v1/uploads/%s", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}
