package e2e

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseURL указывает на запущенный экземпляр GoUpload API
var baseURL = func() string {
	if url := os.Getenv("GOUPLOAD_API_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}()

func TestUploadFullWorkflow(t *testing.T) {
	if os.Getenv("GOUPLOAD_API_URL") == "" {
		t.Skip("GOUPLOAD_API_URL is not set; skipping e2e test")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	// 1. Выпуск токена. Токены выдаёт внешний сервис идентификации,
	// тест подписывает свой тем же общим секретом.
	secret := os.Getenv("GOUPLOAD_JWT_SECRET")
	if secret == "" {
		secret = "change-me-to-a-32-byte-secret"
	}

	userID := uuid.New()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": fmt.Sprintf("e2e_%d@example.com", time.Now().UnixNano()),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	authToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	// 2. Создание сессии загрузки
	payload := make([]byte, 3145728) // 3 MiB
	for i := range payload {
		payload[i] = byte(i * 7 % 256)
	}
	chunkSize := 1048576

	createPayload := map[string]interface{}{
		"file_name":  "e2e-archive.tar",
		"total_size": len(payload),
		"chunk_size": chunkSize,
		"mime_type":  "application/x-tar",
	}

	createBody, _ := json.Marshal(createPayload)
	req, _ := http.NewRequest("POST", baseURL+"/v1/uploads", bytes.NewBuffer(createBody))
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var session struct {
		ID         string `json:"id"`
		ChunkCount int    `json:"chunk_count"`
	}
	body, _ := io.ReadAll(resp.Body)
	json.Unmarshal(body, &session)
	resp.Body.Close()

	require.NotEmpty(t, session.ID)
	require.Equal(t, 3, session.ChunkCount)

	uploadChunk := func(index int) *http.Response {
		chunk := payload[index*chunkSize : min((index+1)*chunkSize, len(payload))]
		sum := sha256.Sum256(chunk)

		req, _ := http.NewRequest("PUT",
			fmt.Sprintf("%s/v1/uploads/%s/chunks/%d", baseURL, session.ID, index),
			bytes.NewReader(chunk))
		req.Header.Set("Authorization", "Bearer "+authToken)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Chunk-Sha256", hex.EncodeToString(sum[:]))

		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	// 3. Загрузка первого чанка
	resp = uploadChunk(0)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 4. Пауза
	req, _ = http.NewRequest("POST", fmt.Sprintf("%s/v1/uploads/%s/pause", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 5. Загрузка во время паузы отклоняется
	resp = uploadChunk(1)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// 6. Возобновление
	req, _ = http.NewRequest("POST", fmt.Sprintf("%s/v1/uploads/%s/resume", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 7. Прогресс после возобновления: первый чанк на месте
	req, _ = http.NewRequest("GET", fmt.Sprintf("%s/v1/uploads/%s/progress", baseURL, session.ID), nil)
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var progress struct {
		State          string `json:"state"`
		UploadedChunks int    `json:"uploaded_chunks"`
		PendingChunks  []int  `json:"pending_chunks"`
	}
	body, _ = io.ReadAll(resp.Body)
	json.Unmarshal(body, &progress)
	resp.Body.Close()

	assert.Equal(t, "active", progress.State)
	assert.Equal(t, 1, progress.UploadedChunks)
	assert.Equal(t, []int{1, 2}, progress.PendingChunks)

	// 8. Догрузка оставшихся чанков
	var result struct {
		Completed bool   `json:"completed"`
		State     string `json:"state"`
		Location  string `json:"location"`
	}
	for _, index := range progress.PendingChunks {
		resp = uploadChunk(index)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, _ = io.ReadAll(resp.Body)
		json.Unmarshal(body, &result)
		resp.Body.Close()
	}

	assert.True(t, result.Completed)
	assert.Equal(t, "completed", result.State)
	assert.NotEmpty(t, result.Location)

	// 9. Сессия видна в списке владельца
	req, _ = http.NewRequest("GET", baseURL+"/v1/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Uploads []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"uploads"`
	}
	body, _ = io.ReadAll(resp.Body)
	json.Unmarshal(body, &list)
	resp.Body.Close()

	require.Len(t, list.Uploads, 1)
	assert.Equal(t, session.ID, list.Uploads[0].ID)
	assert.Equal(t, "completed", list.Uploads[0].State)

	// 10. Отмена второй, незавершённой сессии
	createBody, _ = json.Marshal(map[string]interface{}{
		"file_name":  "abandoned.bin",
		"total_size": 2097152,
	})
	req, _ = http.NewRequest("POST", baseURL+"/v1/uploads", bytes.NewBuffer(createBody))
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var abandoned struct {
		ID string `json:"id"`
	}
	body, _ = io.ReadAll(resp.Body)
	json.Unmarshal(body, &abandoned)
	resp.Body.Close()

	req, _ = http.NewRequest("DELETE", fmt.Sprintf("%s/v1/uploads/%s", baseURL, abandoned.ID), nil)
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}
