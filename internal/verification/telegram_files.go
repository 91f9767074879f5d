package verification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
)

// TelegramFiles fetches screenshot bytes through the bot API: GetFile for the
// server-side path, then a download from the file endpoint. The returned ref
// is the Telegram file path, kept as the durable screenshot reference.
type TelegramFiles struct {
	bot        *bot.Bot
	httpClient *http.Client
}

func NewTelegramFiles(b *bot.Bot) *TelegramFiles {
	return &TelegramFiles{
		bot: b,
		httpClient: &http.Client{
			Timeout: time.Minute,
		},
	}
}

func (t *TelegramFiles) FetchFile(ctx context.Context, fileID string) ([]byte, string, error) {
	info, err := t.bot.GetFile(ctx, &bot.GetFileParams{
		FileID: fileID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("get file %s: %v", fileID, err)
	}

	fileURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", t.bot.Token(), info.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, info.FilePath, nil
}
