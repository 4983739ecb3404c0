// Package api exposes the gateway over HTTP: the /asr model administration
// endpoints and the /ws streaming socket that feeds the session router.
package api
