package redis_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/registry"
	redisregistry "github.com/angeloszaimis/service-monitor/internal/registry/redis"
)

var _ = Describe("Registry", func() {
	var (
		server *miniredis.Miniredis
		reg    *redisregistry.Registry
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = miniredis.RunT(GinkgoT())

		client, err := redisregistry.NewUniversalClient("redis://" + server.Addr())
		Expect(err).NotTo(HaveOccurred())
		reg = redisregistry.New(client, "test")

		Expect(reg.Register(ctx, instance.Instance{
			GroupID: "web", MemberKey: "10.0.0.1:80", Host: "10.0.0.1", Port: 80,
			ConnectTimeout: 2 * time.Second, Status: instance.StatusUp,
		})).To(Succeed())
		Expect(reg.Register(ctx, instance.Instance{
			GroupID: "web", MemberKey: "10.0.0.2:80", Host: "10.0.0.2", Port: 80,
			Status: instance.StatusDown,
		})).To(Succeed())
		Expect(reg.AddGroup(ctx, "empty")).To(Succeed())
	})

	AfterEach(func() {
		reg.Close()
	})

	It("should reject a malformed url", func() {
		_, err := redisregistry.NewUniversalClient("::not a url")
		Expect(err).To(HaveOccurred())
	})

	It("should list groups in order", func() {
		groups, err := reg.ListGroups(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(Equal([]string{"empty", "web"}))
	})

	It("should list members of a group", func() {
		members, err := reg.ListMembers(ctx, "web")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(Equal([]string{"10.0.0.1:80", "10.0.0.2:80"}))
	})

	It("should distinguish an empty group from an unknown one", func() {
		members, err := reg.ListMembers(ctx, "empty")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(BeEmpty())

		_, err = reg.ListMembers(ctx, "missing")
		Expect(err).To(MatchError(registry.ErrNotFound))
	})

	It("should decode stored instances", func() {
		inst, err := reg.Instance(ctx, "web", "10.0.0.1:80")
		Expect(err).NotTo(HaveOccurred())
		Expect(inst.Host).To(Equal("10.0.0.1"))
		Expect(inst.Port).To(Equal(80))
		Expect(inst.ConnectTimeout).To(Equal(2 * time.Second))
		Expect(inst.Status).To(Equal(instance.StatusUp))
	})

	It("should report missing instances", func() {
		_, err := reg.Instance(ctx, "web", "10.0.0.9:80")
		Expect(err).To(MatchError(registry.ErrNotFound))
	})

	It("should fail on corrupt records", func() {
		server.Set("test:instance:web/bad", "{not json")
		_, err := reg.Instance(ctx, "web", "bad")
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(registry.ErrNotFound))
	})

	It("should update only the status field", func() {
		Expect(reg.UpdateStatus(ctx, "web/10.0.0.1:80", instance.StatusDown)).To(Succeed())

		inst, err := reg.Instance(ctx, "web", "10.0.0.1:80")
		Expect(err).NotTo(HaveOccurred())
		Expect(inst.Status).To(Equal(instance.StatusDown))
		Expect(inst.ConnectTimeout).To(Equal(2 * time.Second))
	})

	It("should fail to update unknown instances", func() {
		err := reg.UpdateStatus(ctx, "web/10.0.0.9:80", instance.StatusDown)
		Expect(err).To(MatchError(registry.ErrNotFound))
	})
})
