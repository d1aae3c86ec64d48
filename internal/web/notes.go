package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/meshboard/internal/board"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/store"
)

const defaultAuthor = "user-unknown"

type noteRequest struct {
	Text         string `json:"text"`
	AuthorKey    string `json:"author_key"`
	ColorIndex   int    `json:"color_index"`
	ParentNoteID string `json:"parent_note_id"`
}

type authorRequest struct {
	AuthorKey  string `json:"author_key"`
	ColorIndex int    `json:"color_index"`
}

func (r *noteRequest) author() string {
	if a := strings.TrimSpace(r.AuthorKey); a != "" {
		return a
	}
	return defaultAuthor
}

func (r *authorRequest) author() string {
	if a := strings.TrimSpace(r.AuthorKey); a != "" {
		return a
	}
	return defaultAuthor
}

func (s *Server) listNotes(c *gin.Context) {
	boardID := c.Param("board")
	includeArchived, _ := strconv.ParseBool(c.DefaultQuery("is_include_deleted", "false"))
	threads, err := s.board.ListNotes(c.Request.Context(), boardID, includeArchived)
	if err != nil {
		writeError(c, err)
		return
	}
	notes := viewThreads(threads)
	c.JSON(http.StatusOK, gin.H{"success": true, "board_id": boardID, "notes": notes, "count": len(notes)})
}

func (s *Server) createNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	boardID := c.Param("board")
	n, err := s.board.CreateNote(c.Request.Context(), boardID, req.Text, req.author(), req.ColorIndex, req.ParentNoteID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "note_id": n.NoteID, "board_id": boardID, "note": viewNote(n)})
}

func (s *Server) editNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	n, err := s.board.EditNote(c.Request.Context(), c.Param("note"), req.author(), req.Text, req.ColorIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note": viewNote(n)})
}

func (s *Server) deleteNote(c *gin.Context) {
	req := bindAuthor(c)
	if err := s.board.DeleteNote(c.Request.Context(), c.Param("note"), req.author()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note_id": c.Param("note")})
}

func (s *Server) archiveNote(c *gin.Context) {
	req := bindAuthor(c)
	n, err := s.board.ArchiveNote(c.Request.Context(), c.Param("note"), req.author(), s.isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note_id": n.NoteID, "board_id": n.BoardID})
}

func (s *Server) setColor(c *gin.Context) {
	req := bindAuthor(c)
	n, err := s.board.SetColor(c.Request.Context(), c.Param("note"), req.author(), req.ColorIndex, s.isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note": viewNote(n)})
}

func (s *Server) pinNote(c *gin.Context) {
	if !s.isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "admin only"})
		return
	}
	n, err := s.board.PinNote(c.Request.Context(), c.Param("note"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note": viewNote(n)})
}

func (s *Server) resendNote(c *gin.Context) {
	req := bindAuthor(c)
	n, err := s.board.ResendNote(c.Request.Context(), c.Param("note"), req.author(), s.isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "note_id": n.NoteID, "board_id": n.BoardID, "resent_count": n.ResentCount})
}

func (s *Server) listAcks(c *gin.Context) {
	acks, err := s.board.ListAcks(c.Request.Context(), c.Param("note"))
	if err != nil {
		writeError(c, err)
		return
	}
	views := viewAcks(acks)
	c.JSON(http.StatusOK, gin.H{"success": true, "note_id": c.Param("note"), "acks": views, "count": len(views)})
}

// bindAuthor reads an optional body; a missing body means the default author.
func bindAuthor(c *gin.Context) authorRequest {
	var req authorRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return req
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logs.Errf("web %s %s err=%v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrParentNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotAuthor),
		errors.Is(err, store.ErrNotEditable),
		errors.Is(err, store.ErrNotPublished),
		errors.Is(err, store.ErrNotResendable),
		errors.Is(err, store.ErrNotPinnable):
		return http.StatusForbidden
	case errors.Is(err, store.ErrEmptyBody),
		errors.Is(err, store.ErrMissingBoard),
		errors.Is(err, board.ErrBodyTooLong),
		errors.Is(err, board.ErrInvalidHeader):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrLinkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
