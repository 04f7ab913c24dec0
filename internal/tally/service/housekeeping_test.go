package service_test

import (
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

func (s *ServiceSuite) housekeeping() *service.HousekeepingService {
	return service.NewHousekeepingService(s.invites, s.users, s.subs, s.metrics, slogx.Discard(), time.Hour)
}

func (s *ServiceSuite) TestHousekeepingRunOnce() {
	org, admin := s.organization("Acme", "owner@acme.test")
	_, _, err := s.invites.Create(s.ctx, admin, "late@x.com", "", time.Hour)
	s.Require().NoError(err)
	_, err = s.subs.Start(s.ctx, admin, org.ID, "team", 24*time.Hour)
	s.Require().NoError(err)
	s.register("reset@x.com")
	_, err = s.users.RequestPasswordReset(s.ctx, "reset@x.com")
	s.Require().NoError(err)

	s.advance(48 * time.Hour)

	changed, err := s.housekeeping().RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[string]int64{
		service.JobExpireInvitations:   1,
		service.JobPurgeResetTokens:    1,
		service.JobExpireSubscriptions: 1,
	}, changed)

	changed, err = s.housekeeping().RunOnce(s.ctx)
	s.Require().NoError(err)
	for job, n := range changed {
		s.Zero(n, job)
	}

	count, err := testutil.GatherAndCount(s.metrics.Registry(), "tally_housekeeping_runs_total")
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *ServiceSuite) TestHousekeepingScheduler() {
	_, admin := s.organization("Acme", "owner@acme.test")
	inv, _, err := s.invites.Create(s.ctx, admin, "late@x.com", "", time.Hour)
	s.Require().NoError(err)
	s.advance(2 * time.Hour)

	hk := s.housekeeping()
	s.Require().NoError(hk.Start(s.ctx))
	s.Error(hk.Start(s.ctx))

	s.Eventually(func() bool {
		row, err := s.store.Invitations().Get(s.ctx, inv.ID)
		return err == nil && row.Status == domain.InvitationExpired
	}, 5*time.Second, 20*time.Millisecond)

	s.Require().NoError(hk.Stop())
	s.NoError(hk.Stop())
}
