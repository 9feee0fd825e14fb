// Package extractor 提供基于 Apache Tika 的文档文本与章节结构提取能力。
package extractor

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"learn-copilot-go/internal/config"
)

// 匹配 "Chapter 3: Motion" / "CHAPTER 1 - Forces" / "Unit 2 Waves" 等章节标题行。
var chapterPattern = regexp.MustCompile(`(?i)(?:CHAPTER|Unit)\s*[\d.]+\s*[-:]?\s*(.+)`)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取纯文本。
// Tika 的纯文本输出以换页符分隔各页。
func (c *Client) ExtractText(fileReader io.Reader, fileName string) (string, error) {
	contentType := detectMimeType(fileName)

	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return buf.String(), nil
}

// ExtractChapters 提取文本并按章节与页码组织，返回 chapter -> page -> text。
func (c *Client) ExtractChapters(fileReader io.Reader, fileName string) (map[string]map[int]string, error) {
	text, err := c.ExtractText(fileReader, fileName)
	if err != nil {
		return nil, err
	}
	return SplitChapters(text), nil
}

// SplitChapters 将按换页符分页的文本组织为 chapter -> page -> text。
// 页面中出现章节标题时，该页及后续页归入新章节；标题出现前的内容归入 "Introduction"。
func SplitChapters(text string) map[string]map[int]string {
	chapters := make(map[string]map[int]string)
	currentChapter := "Introduction"

	pages := strings.Split(text, "\f")
	for i, page := range pages {
		if m := chapterPattern.FindStringSubmatch(page); m != nil {
			currentChapter = strings.TrimSpace(m[1])
		}

		cleaned := cleanPageText(page)
		if cleaned == "" {
			continue
		}

		if chapters[currentChapter] == nil {
			chapters[currentChapter] = make(map[int]string)
		}
		chapters[currentChapter][i+1] = cleaned
	}

	return chapters
}

// cleanPageText 去掉空行与行首尾空白。
func cleanPageText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
