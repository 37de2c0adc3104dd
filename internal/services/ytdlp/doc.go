// Package ytdlp resolves a page URL into a directly fetchable audio stream by
// probing it with the yt-dlp CLI.
//
// Resolution never downloads media: yt-dlp is run with --skip-download and
// its JSON metadata is parsed to pick the best audio variant (audio-only,
// progressive, highest bitrate, highest sample rate) together with the HTTP
// headers the stream requires.
package ytdlp
