package integration

import (
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// baseURL указывает на запущенный экземпляр GoUpload API
var baseURL = func() string {
	if url := os.Getenv("GOUPLOAD_API_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}()

// requireServer пропускает тест, если интеграционное окружение не поднято
func requireServer(t *testing.T) {
	t.Helper()
	if os.Getenv("GOUPLOAD_API_URL") == "" {
		t.Skip("GOUPLOAD_API_URL is not set; skipping integration test")
	}
}

func newClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mintToken подписывает токен тем же секретом, что и сервер. Токены выпускает
// внешний сервис идентификации; интеграционные тесты воспроизводят его подпись.
func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	secret := os.Getenv("GOUPLOAD_JWT_SECRET")
	if secret == "" {
		secret = "change-me-to-a-32-byte-secret"
	}

	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": fmt.Sprintf("test_%s@example.com", userID),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// testChunks нарезает полезную нагрузку на чанки фиксированного размера с хвостом
func testChunks(payload []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}
