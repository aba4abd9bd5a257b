//go:build integration

package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/navpilot/internal/config"
	"github.com/eliteGoblin/navpilot/internal/daemon"
	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/hook"
)

var _ = Describe("Escape pause/exit flow", func() {
	var r *rig

	AfterEach(func() {
		r.stop()
	})

	Context("while navigating", func() {
		BeforeEach(func() {
			r = newRig(nil)
			r.start()
			Eventually(r.source.Listening).Should(BeTrue())
			Eventually(r.submitted, 5*time.Second, time.Millisecond).Should(BeNumerically(">=", 1))
		})

		It("should type and submit the target address", func() {
			Expect(r.desktop.Count("down")).To(BeNumerically(">=", 1))
			Expect(r.shared.State()).To(Equal(domain.StateRunning))
		})

		It("should pause on the first Escape and open an owned terminal", func() {
			Expect(r.source.PressEscape()).To(Succeed())
			Expect(r.shared.State()).To(Equal(domain.StatePaused))

			Eventually(func() int { return r.desktop.Count("launch") }).Should(Equal(1))
			Eventually(func() string {
				title, _ := r.desktop.WindowTitle(r.desktop.ForegroundWindow())
				return title
			}).Should(Equal("navpilot paused"))

			moves := r.desktop.Count("move")
			Consistently(func() int { return r.desktop.Count("move") }, 150*time.Millisecond).Should(Equal(moves))
		})

		It("should exit on the second Escape and clean up", func() {
			Expect(r.source.PressEscape()).To(Succeed())
			Eventually(func() int { return r.desktop.Count("launch") }).Should(Equal(1))
			time.Sleep(2 * r.cfg.Hook.Debounce)

			Expect(r.source.PressEscape()).To(Succeed())
			Expect(r.wait(2 * time.Second)).To(Succeed())

			Expect(r.shared.State()).To(Equal(domain.StateExiting))
			Expect(r.shared.Delivered()).To(BeTrue())
			Expect(r.desktop.Count("console")).To(Equal(1))
			Expect(r.out.String()).To(BeEmpty())
			Expect(r.processes.Killed()).To(HaveLen(1))
			Expect(r.source.Stops()).To(Equal(1))
			Expect(r.controller.Status()).To(Equal(hook.StatusStopped))
		})

		It("should ignore Escape auto-repeat while the key is held", func() {
			Expect(r.source.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true})).To(Succeed())
			time.Sleep(2 * r.cfg.Hook.Debounce)
			Expect(r.source.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true})).To(Succeed())

			Expect(r.shared.State()).To(Equal(domain.StatePaused))
			Expect(r.shared.Presses()).To(Equal(uint64(1)))
		})

		It("should tear down without a message when interrupted", func() {
			Expect(r.source.PressEscape()).To(Succeed())
			Eventually(func() int { return r.desktop.Count("launch") }).Should(Equal(1))

			r.cancel()
			Expect(errors.Is(r.wait(2*time.Second), context.Canceled)).To(BeTrue())

			Expect(r.processes.Killed()).To(HaveLen(1))
			Expect(r.desktop.Count("console")).To(BeZero())
			Expect(r.out.String()).To(BeEmpty())
			Expect(r.shared.Delivered()).To(BeFalse())
		})
	})

	Context("with its own synthetic Escape", func() {
		It("should not count injected events", func() {
			r = newRig(nil)
			r.desktop.OnKeyDown(func(code domain.KeyCode) {
				if code == domain.KeyEscape {
					_ = r.source.InjectEscape()
				}
			})
			r.start()

			Eventually(r.submitted, 5*time.Second, time.Millisecond).Should(BeNumerically(">=", 2))
			Expect(r.shared.State()).To(Equal(domain.StateRunning))
			Expect(r.shared.Presses()).To(BeZero())
			Expect(r.controller.Injected()).To(BeNumerically(">=", 2))
		})

		It("should discard a physical press inside the debounce window", func() {
			r = newRig(func(c *config.Config) { c.Hook.Debounce = time.Second })
			pressed := false
			r.desktop.OnKeyDown(func(code domain.KeyCode) {
				if code == domain.KeyEscape && !pressed {
					pressed = true
					_ = r.source.PressEscape()
				}
			})
			r.start()

			Eventually(r.controller.Debounced, 5*time.Second, time.Millisecond).Should(Equal(uint64(1)))
			Expect(r.shared.State()).To(Equal(domain.StateRunning))
			Expect(r.shared.Presses()).To(BeZero())
		})
	})

	Context("when launched from an existing console", func() {
		It("should focus it, print the message once and never kill it", func() {
			r = newRig(nil)
			r.desktop.SetConsoleWindow(domain.WindowHandle(7), "Command Prompt - navpilot")
			r.start()
			Eventually(r.source.Listening).Should(BeTrue())

			Expect(r.source.PressEscape()).To(Succeed())
			Eventually(r.desktop.ForegroundWindow).Should(Equal(domain.WindowHandle(7)))
			time.Sleep(2 * r.cfg.Hook.Debounce)
			Expect(r.source.PressEscape()).To(Succeed())
			Expect(r.wait(2 * time.Second)).To(Succeed())

			Expect(strings.Count(r.out.String(), daemon.ShutdownMessage)).To(Equal(1))
			Expect(r.desktop.Count("launch")).To(BeZero())
			Expect(r.desktop.Count("console")).To(BeZero())
			Expect(r.processes.Killed()).To(BeEmpty())
		})
	})

	Context("when the terminal window never appears", func() {
		It("should fall back to printing locally", func() {
			r = newRig(func(c *config.Config) { c.Terminal.AttachTimeout = 20 * time.Millisecond })
			r.desktop.LaunchWindowLag = 1 << 20
			r.desktop.FailConsole = true
			r.start()
			Eventually(r.source.Listening).Should(BeTrue())

			Expect(r.source.PressEscape()).To(Succeed())
			Eventually(func() int { return r.desktop.Count("launch") }).Should(Equal(1))
			time.Sleep(100 * time.Millisecond)
			Expect(r.source.PressEscape()).To(Succeed())
			Expect(r.wait(2 * time.Second)).To(Succeed())

			Expect(r.out.String()).To(Equal(daemon.ShutdownMessage + "\n"))
			Expect(r.processes.Killed()).To(HaveLen(1), "spawned process is still owned")
		})
	})

	Context("when the keyboard hook cannot be installed", func() {
		It("should keep navigating in degraded mode", func() {
			r = newRig(nil)
			r.source.InstallErr = errors.New("access denied")
			r.start()

			Eventually(r.submitted, 5*time.Second, time.Millisecond).Should(BeNumerically(">=", 2))
			Expect(r.loop.Degraded()).To(BeTrue())
		})
	})
})
