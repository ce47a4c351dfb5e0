package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"workforce/internal/collab"
	"workforce/internal/console"
	"workforce/internal/display"
	"workforce/internal/ledger"
	"workforce/internal/logger"
	"workforce/internal/orchestrator"
	"workforce/internal/quota"
)

// RunMission plans and executes goal for user and prints the outcome.
func (a *App) RunMission(ctx context.Context, user, goal string, mode orchestrator.Mode) error {
	if err := a.admit(ctx, user, len(goal), 0); err != nil {
		return err
	}
	res := a.Orchestrator.ProcessRequest(ctx, user, goal, mode)
	a.printf("%s\n", display.FormatMissionResult(res))
	if res.Metrics != nil {
		a.printf("%s", display.FormatMissionMetrics(res.Metrics))
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

// RunCollab starts a conversation for request, creates one task assigned to
// every selected agent and runs it.
func (a *App) RunCollab(ctx context.Context, user, request string, agents []string) error {
	if err := a.admit(ctx, user, len(request), 0); err != nil {
		return err
	}
	convID := uuid.NewString()
	c, err := a.Collab.StartCollaboration(ctx, convID, user, request, agents)
	if err != nil {
		return err
	}
	defer a.Collab.EndCollaboration(convID)

	names := make([]string, 0, len(c.Agents()))
	for _, e := range c.Agents() {
		names = append(names, e.Name)
	}
	a.printf("Team: %s\n", strings.Join(names, ", "))

	task, err := a.Collab.CreateTask(convID, collab.TaskSpec{Description: request, AssignedAgents: names})
	if err != nil {
		return err
	}
	res := a.Collab.ExecuteCollaborativeTask(ctx, convID, task.ID)
	a.printf("%s", display.FormatTaskResult(res))
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}

// Balance prints the user's balance, tier and monthly allowance. grant and tier
// are applied first when set.
func (a *App) Balance(ctx context.Context, user string, grant int64, tier string) error {
	if tier != "" {
		t, err := ledger.ParseTier(tier)
		if err != nil {
			return err
		}
		if err := a.Ledger.SetPlan(ctx, user, t); err != nil {
			return err
		}
	}
	if grant > 0 {
		if _, err := a.Ledger.Grant(ctx, user, grant); err != nil {
			return err
		}
	}

	bal := a.Guard.GetUserTokenBalance(ctx, user)
	if bal == nil {
		return fmt.Errorf("could not read balance for %s", user)
	}
	plan, err := a.Ledger.ReadPlan(ctx, user)
	if err != nil {
		return err
	}
	allowance := a.Guard.CheckMonthlyAllowance(ctx, user)

	a.printf("User:    %s\n", user)
	a.printf("Plan:    %s\n", plan)
	a.printf("Balance: %d tokens\n", *bal)
	if allowance.Limit == quota.Unlimited {
		a.printf("Monthly: %d used (unlimited)\n", allowance.Used)
	} else {
		a.printf("Monthly: %d / %d used, %d remaining\n", allowance.Used, allowance.Limit, allowance.Remaining)
	}
	return nil
}

func (a *App) Employees(ctx context.Context) error {
	emps, err := a.Orchestrator.Employees(ctx)
	if err != nil {
		return err
	}
	a.printf("%s", display.FormatEmployees(emps))
	return nil
}

// Chat reads goals from the console and runs each one as a background mission.
// Results are printed above the prompt as they finish.
func (a *App) Chat(ctx context.Context, con *console.Console, user string, mode orchestrator.Mode) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		history int
		nextID  int
	)
	running := make(map[int]context.CancelFunc)
	defer wg.Wait()

	con.AsyncPrintln("Hello! What should the team work on? (type 'cancel' to stop the latest mission, 'exit' to quit)")
	for {
		line, err := con.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "balance":
			if bal := a.Guard.GetUserTokenBalance(ctx, user); bal != nil {
				con.AsyncPrintln(fmt.Sprintf("Balance: %d tokens", *bal))
			}
			continue
		case "cancel":
			con.AsyncPrintln(cancelMostRecent(&mu, running))
			continue
		}

		mu.Lock()
		h := history
		mu.Unlock()
		if err := a.admit(ctx, user, len(line), h); err != nil {
			con.AsyncPrintln(err.Error())
			continue
		}

		goal := line
		mctx, cancel := context.WithCancel(ctx)
		mu.Lock()
		nextID++
		id := nextID
		running[id] = cancel
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			res := a.Orchestrator.ProcessRequest(mctx, user, goal, mode)
			mu.Lock()
			history += len(goal)
			delete(running, id)
			mu.Unlock()

			if !res.Success {
				con.AsyncPrintln(fmt.Sprintf("[Mission %s FAILED] %s", res.MissionID, res.Error))
				return
			}
			logger.Log.Info("chat mission finished", "mission", res.MissionID, "failed_tasks", res.FailedTasks())
			con.AsyncPrintln(fmt.Sprintf("[Mission %s SUCCEEDED]", res.MissionID))
			con.AsyncPrintln(display.FormatMissionResult(res))
			if res.Metrics != nil {
				con.AsyncPrintln(display.FormatMissionMetrics(res.Metrics))
			}
		}()
		con.AsyncPrintln(fmt.Sprintf("Mission started for %q", goal))
	}
}

// cancelMostRecent stops the newest mission still running.
func cancelMostRecent(mu *sync.Mutex, running map[int]context.CancelFunc) string {
	mu.Lock()
	defer mu.Unlock()
	newest := 0
	for id := range running {
		if id > newest {
			newest = id
		}
	}
	if newest == 0 {
		return "No mission is running."
	}
	running[newest]()
	delete(running, newest)
	return fmt.Sprintf("Cancelled mission #%d.", newest)
}
