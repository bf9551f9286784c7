package notify

import (
	"html/template"
	"strings"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// digestTemplate is the HTML body. Kept deliberately inline-styled so it
// renders the same across mail clients.
var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #FF0000;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 8px 8px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 20px;
            border: 1px solid #ddd;
            border-radius: 0 0 8px 8px;
        }
        .video-thumbnail {
            width: 100%;
            max-width: 560px;
            height: auto;
            border-radius: 8px;
            margin: 20px 0;
        }
        .channel {
            color: #606060;
            font-size: 14px;
            margin-bottom: 10px;
        }
        .title {
            font-size: 20px;
            font-weight: bold;
            margin-bottom: 15px;
        }
        .summary {
            background-color: white;
            padding: 15px;
            border-left: 4px solid #FF0000;
            margin: 20px 0;
        }
        .watch-button {
            display: inline-block;
            background-color: #FF0000;
            color: white;
            padding: 12px 24px;
            text-decoration: none;
            border-radius: 4px;
            margin-top: 15px;
        }
        .audio-note {
            background-color: #e8f4f8;
            padding: 10px;
            border-radius: 4px;
            margin-top: 15px;
            font-size: 14px;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>&#128250; YouTube Video Summary</h1>
    </div>
    <div class="content">
        <div class="channel">&#128226; {{.ChannelName}}</div>
        <div class="title">{{.Title}}</div>

        <a href="{{.VideoURL}}" target="_blank">
            <img src="{{.ThumbnailURL}}" alt="Video thumbnail" class="video-thumbnail">
        </a>

        <div class="summary">
            <strong>Summary:</strong><br>
            {{.Summary}}
        </div>

        <a href="{{.VideoURL}}" class="watch-button" target="_blank">&#9654; Watch on YouTube</a>

        <div class="audio-note">
            &#128266; <strong>Audio narration attached</strong> - Listen to this summary on the go!
        </div>
    </div>
</body>
</html>`))

type digestData struct {
	ChannelName  string
	Title        string
	VideoURL     string
	ThumbnailURL string
	Summary      string
}

func renderHTMLBody(video engine.CandidateVideo, summary string) (string, error) {
	channel := video.ChannelName
	if channel == "" {
		channel = "Unknown Channel"
	}
	thumbnail := video.ThumbnailURL
	if thumbnail == "" {
		thumbnail = "https://img.youtube.com/vi/" + video.VideoID + "/maxresdefault.jpg"
	}

	var sb strings.Builder
	err := digestTemplate.Execute(&sb, digestData{
		ChannelName:  channel,
		Title:        video.Title,
		VideoURL:     video.WatchURL(),
		ThumbnailURL: thumbnail,
		Summary:      summary,
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
