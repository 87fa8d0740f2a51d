// Package reconciler 从 applicant-tracking 拉取权威记录，重新计算候选人的时间线，
// 并把结果同步到客户端状态仓库。
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"recruit-desk/internal/apperr"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/state"
	"recruit-desk/internal/types"

	"golang.org/x/sync/errgroup"
)

const opTracking = "applicant-tracking"

// TrackingSource applicant-tracking 接口，*collaborator.Client 实现了它
type TrackingSource interface {
	ApplicantTracking(ctx context.Context, applicantID string) (*types.TrackingRecord, error)
}

// View 一个候选人当前的展示状态
type View struct {
	Applicant    types.Applicant `json:"applicant"`
	Timeline     types.Timeline  `json:"timeline"`
	ActiveStep   types.Step      `json:"activeStep"`
	DefaultStep  types.Step      `json:"defaultStep"`
	Overridden   bool            `json:"overridden"`
	Seq          uint64          `json:"seq"`
	ReconciledAt time.Time       `json:"reconciledAt"`
}

// IsZero 没有任何已同步的状态
func (v View) IsZero() bool {
	return v.Applicant.ApplicantID == ""
}

func (v View) clone() View {
	out := v
	out.Applicant = v.Applicant.Clone()
	out.Timeline = DeriveTimeline(out.Applicant)
	return out
}

// Option 配置项
type Option func(*Reconciler)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithConcurrency ReconcileAll 的并发上限
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// Reconciler 一个工作区的候选人跟踪同步器
type Reconciler struct {
	source      TrackingSource
	store       *state.Store
	now         func() time.Time
	concurrency int

	mu     sync.Mutex
	issued map[string]uint64 // 每个候选人最近签发的序号
	views  map[string]View
}

// New 创建同步器
func New(source TrackingSource, store *state.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:      source,
		store:       store,
		now:         time.Now,
		concurrency: 4,
		issued:      make(map[string]uint64),
		views:       make(map[string]View),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile 拉取候选人的权威记录并重新计算时间线。
// 失败时保留之前的状态并返回错误；响应被更新的请求取代时返回 apperr.ErrStale 和当前状态。
func (r *Reconciler) Reconcile(ctx context.Context, applicantID string) (View, error) {
	if strings.TrimSpace(applicantID) == "" {
		return View{}, apperr.Validation(opTracking, "applicantId", "Applicant ID is required.")
	}

	r.mu.Lock()
	r.issued[applicantID]++
	token := r.issued[applicantID]
	r.mu.Unlock()

	record, err := r.source.ApplicantTracking(ctx, applicantID)

	r.mu.Lock()
	defer r.mu.Unlock()

	prior, hasPrior := r.views[applicantID]
	if r.issued[applicantID] != token {
		logger.Ctx(ctx).Debug().Str("applicant_id", applicantID).Uint64("token", token).Msg("丢弃过期的跟踪响应")
		if !hasPrior {
			return View{}, apperr.Stale(opTracking)
		}
		return prior.clone(), apperr.Stale(opTracking)
	}
	if err == nil && record == nil {
		err = apperr.Collaborator(opTracking, 0, "", "空的跟踪记录")
	}
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("applicant_id", applicantID).Msg("获取候选人跟踪记录失败，保留原状态")
		if !hasPrior {
			return View{}, err
		}
		return prior.clone(), err
	}

	base := prior.Applicant
	if !hasPrior {
		base = r.baseApplicant(applicantID)
	}
	applicant := record.Apply(base)
	applicant.ApplicantID = applicantID

	def := DefaultActiveStep(applicant)
	view := View{
		Applicant:    applicant,
		Timeline:     DeriveTimeline(applicant),
		ActiveStep:   def,
		DefaultStep:  def,
		Seq:          token,
		ReconciledAt: r.now(),
	}
	r.views[applicantID] = view
	r.syncStore(applicant)

	logger.Ctx(ctx).Debug().
		Str("applicant_id", applicantID).
		Str("stage", view.Timeline.Stage.String()).
		Str("active_step", string(view.ActiveStep)).
		Msg("候选人时间线已更新")
	return view.clone(), nil
}

// baseApplicant 从仓库中找到候选人的展示信息
func (r *Reconciler) baseApplicant(applicantID string) types.Applicant {
	for _, a := range r.store.AtsProfiles() {
		if a.ApplicantID == applicantID {
			return a
		}
	}
	for _, p := range r.store.Profiles() {
		if p.ApplicantID == applicantID {
			return types.Applicant{ApplicantID: p.ApplicantID, SearchID: p.SearchID, Profile: p.ProfileMetadata}
		}
	}
	return types.Applicant{ApplicantID: applicantID}
}

// syncStore 用后端记录覆盖该候选人的面试轮次，并更新跟踪列表
func (r *Reconciler) syncStore(applicant types.Applicant) {
	r.store.UpdateInterviews(func(all []types.InterviewRecord) []types.InterviewRecord {
		derived := DeriveInterviews(applicant, all)
		others := make([]types.InterviewRecord, 0, len(all)+len(derived))
		for _, rec := range all {
			if rec.ApplicantID != applicant.ApplicantID {
				others = append(others, rec)
			}
		}
		return append(others, derived...)
	})
	r.store.UpdateAtsProfiles(func(all []types.Applicant) []types.Applicant {
		for i, a := range all {
			if a.ApplicantID == applicant.ApplicantID {
				all[i] = applicant.Clone()
				return all
			}
		}
		return append(all, applicant.Clone())
	})
}

// SetActiveStep 手动切换展示的步骤，只在本次会话有效，下一次成功同步时恢复默认
func (r *Reconciler) SetActiveStep(applicantID string, step types.Step) (View, error) {
	if !step.Valid() {
		return View{}, apperr.Validation("active-step", "step", fmt.Sprintf("Unknown step %q.", step))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	view, ok := r.views[applicantID]
	if !ok {
		return View{}, apperr.NotFound("active-step", "Applicant has not been loaded yet.")
	}
	view.ActiveStep = step
	view.Overridden = step != view.DefaultStep
	r.views[applicantID] = view

	r.store.UpdateSelection(func(sel state.Selection) state.Selection {
		sel.ApplicantID = applicantID
		sel.ActiveStep = step
		return sel
	})
	return view.clone(), nil
}

// Current 返回已知的展示状态
func (r *Reconciler) Current(applicantID string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[applicantID]
	if !ok {
		return View{}, false
	}
	return view.clone(), true
}

// Invalidate 使进行中的请求失效，相当于离开候选人详情页
func (r *Reconciler) Invalidate(applicantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[applicantID]++
}

// Forget 丢弃候选人的展示状态，进行中的请求同时失效
func (r *Reconciler) Forget(applicantIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range applicantIDs {
		r.issued[id]++
		delete(r.views, id)
	}
}

// ReconcileAll 并发同步多个候选人，单个失败不影响其他候选人。
// 返回成功的结果和按候选人记录的错误，过期响应不算错误。
func (r *Reconciler) ReconcileAll(ctx context.Context, applicantIDs []string) (map[string]View, map[string]error) {
	var mu sync.Mutex
	views := make(map[string]View, len(applicantIDs))
	errs := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range applicantIDs {
		id := id
		g.Go(func() error {
			view, err := r.Reconcile(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				views[id] = view
			case apperr.KindOf(err) == apperr.KindStale:
			default:
				errs[id] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return views, errs
}
