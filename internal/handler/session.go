package handler

import (
	"context"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/abhishek622/evalengine/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) StartSession(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	sess, err := h.Sessions.GetOrCreate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info("start_session: session ready",
		zap.Int64("application_id", id),
		zap.String("session_id", sess.ID),
		h.callerField(c),
	)
	response.OK(c, sess)
}

func (h *Handler) UpdateProgress(c *gin.Context) {
	var req model.UpdateProgressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sess, err := h.Sessions.UpdateProgress(c.Request.Context(), c.Param("id"), *req.Progress)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, sess)
}

// SubmitAnswer records an answer, has it scored and records the resulting
// evaluation.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req model.RecordAnswerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.Scorer == nil {
		h.respondError(c, apperr.New(apperr.CodeInfrastructure, "scorer is not configured"))
		return
	}

	ctx := c.Request.Context()
	sessionID := c.Param("id")
	sess, err := h.Sessions.RecordAnswer(ctx, sessionID, req.QuestionID, req.Answer)
	if err != nil {
		h.respondError(c, err)
		return
	}

	question := sess.Snapshot.Questions[req.QuestionID]
	fb, raw, err := h.Scorer.Score(ctx, question, req.Answer)
	if err != nil {
		h.Logger.Warn("submit_answer: scoring failed",
			zap.String("session_id", sessionID),
			zap.Int64("question_id", req.QuestionID),
			zap.String("code", string(apperr.GetCode(err))),
			zap.Error(err),
		)
		h.respondError(c, err)
		return
	}

	e := fb.Evaluation(sess.ApplicationID, req.QuestionID, req.Answer, raw, time.Time{})
	sess, err = h.Sessions.RecordEvaluation(ctx, sessionID, e)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, gin.H{"session": sess, "feedback": fb})
}

func (h *Handler) RecordEvaluation(c *gin.Context) {
	var req model.RecordEvaluationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	raw, err := model.EncodeFeedback(req.Feedback)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.CodeInvalidArgument, "feedback could not be encoded", err))
		return
	}
	e := req.Feedback.Evaluation(0, req.QuestionID, req.Answer, raw, time.Time{})
	sess, err := h.Sessions.RecordEvaluation(c.Request.Context(), c.Param("id"), e)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, sess)
}

func (h *Handler) FinalizeSession(c *gin.Context) {
	h.transition(c, "finalize", h.Sessions.Finalize)
}

func (h *Handler) PauseSession(c *gin.Context) {
	h.transition(c, "pause", h.Sessions.Pause)
}

func (h *Handler) ResumeSession(c *gin.Context) {
	h.transition(c, "resume", h.Sessions.Resume)
}

func (h *Handler) AbandonSession(c *gin.Context) {
	h.transition(c, "abandon", h.Sessions.Abandon)
}

func (h *Handler) ExpireSession(c *gin.Context) {
	h.transition(c, "expire", h.Sessions.Expire)
}

func (h *Handler) transition(c *gin.Context, op string, fn func(context.Context, string) (model.Session, error)) {
	sess, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info(op+": session transitioned",
		zap.String("session_id", sess.ID),
		zap.String("status", string(sess.Status)),
		h.callerField(c),
	)
	response.OK(c, sess)
}
