package engine

import (
	"fmt"
	"sort"
	"strings"

	"sitebot/internal/domain"
)

// helpText is the fixed reply for anything the engine cannot act on.
const helpText = `I didn't catch that. Here's what I understand:

• "spent 500 on cement" — log an expense
• "task: inspect foundation" — add a task
• "set budget 1000000" — set the project budget
• "how much have I spent" — expense summary
• send a photo with a caption — save a site picture
• /help — show this message`

const registrationText = "I don't have an account for this number yet. Please register through your site manager, or say \"hi\" to get started."

// handleExpense records an expense. Amount is mandatory: a missing amount
// (even after AI fallback) yields the help reply and no mutation — a
// zero/null expense is never recorded.
func (d *Dispatcher) handleExpense(intent domain.ParsedIntent, acct domain.AccountContext) domain.ConversationReply {
	if intent.Amount == nil {
		return domain.ConversationReply{Text: helpText}
	}
	amount := *intent.Amount

	description := intent.Description
	if description == "" {
		description = "expense"
	}
	category := d.categories.Resolve(description)

	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %s for %s (%s).", domain.FormatAmount(amount), description, category)
	if acct.BudgetAmount > 0 {
		remaining := acct.BudgetAmount - acct.TotalSpent - amount
		fmt.Fprintf(&b, "\nBudget remaining: %s of %s.",
			domain.FormatAmount(remaining), domain.FormatAmount(acct.BudgetAmount))
	}

	return domain.ConversationReply{
		Text: b.String(),
		Mutations: []domain.Mutation{domain.RecordExpense{
			Amount:      amount,
			Description: description,
			Category:    category,
		}},
	}
}

func (d *Dispatcher) handleTask(intent domain.ParsedIntent) domain.ConversationReply {
	title := strings.TrimSpace(intent.Description)
	if title == "" {
		return domain.ConversationReply{Text: helpText}
	}
	prio := intent.Priority
	if prio == "" {
		prio = domain.PriorityMedium
	}
	return domain.ConversationReply{
		Text:      fmt.Sprintf("Task added: %s (%s priority).", title, prio),
		Mutations: []domain.Mutation{domain.CreateTask{Title: title, Priority: prio}},
	}
}

// handleBudget replaces the tracked budget outright, last-write-wins.
func (d *Dispatcher) handleBudget(intent domain.ParsedIntent) domain.ConversationReply {
	if intent.Amount == nil {
		return domain.ConversationReply{Text: helpText}
	}
	return domain.ConversationReply{
		Text:      fmt.Sprintf("Budget set to %s.", domain.FormatAmount(*intent.Amount)),
		Mutations: []domain.Mutation{domain.UpdateBudget{Amount: *intent.Amount}},
	}
}

// handleQuery summarizes spend against budget and lists the top three
// categories, descending, ties broken by the fixed category order.
func (d *Dispatcher) handleQuery(acct domain.AccountContext) domain.ConversationReply {
	var b strings.Builder
	fmt.Fprintf(&b, "Total spent: %s.", domain.FormatAmount(acct.TotalSpent))
	if acct.BudgetAmount > 0 {
		remaining := acct.BudgetAmount - acct.TotalSpent
		pct := acct.TotalSpent / acct.BudgetAmount * 100
		fmt.Fprintf(&b, "\nBudget: %s, remaining %s (%.0f%% used).",
			domain.FormatAmount(acct.BudgetAmount), domain.FormatAmount(remaining), pct)
	}

	if top := topCategories(acct.CategoryTotals, d.categories.Order(), 3); len(top) > 0 {
		b.WriteString("\n\nTop categories:")
		for _, name := range top {
			fmt.Fprintf(&b, "\n• %s: %s", name, domain.FormatAmount(acct.CategoryTotals[name]))
		}
	}
	return domain.ConversationReply{Text: b.String()}
}

// handleImage stores a media reference with an optional caption. No amount
// is required.
func (d *Dispatcher) handleImage(intent domain.ParsedIntent, msg domain.InboundMessage) domain.ConversationReply {
	if len(msg.Media) == 0 {
		return domain.ConversationReply{Text: helpText}
	}
	caption := strings.TrimSpace(intent.Description)
	text := "Photo saved."
	if caption != "" {
		text = fmt.Sprintf("Photo saved: %s", caption)
	}
	return domain.ConversationReply{
		Text:      text,
		Mutations: []domain.Mutation{domain.StoreImage{MediaRef: msg.Media[0], Caption: caption}},
	}
}

// topCategories returns up to limit category names ordered by spend
// descending; equal totals keep the fixed precedence order.
func topCategories(totals map[string]float64, order []string, limit int) []string {
	names := make([]string, 0, len(totals))
	for _, name := range order {
		if totals[name] > 0 {
			names = append(names, name)
		}
	}
	// Categories outside the configured order still participate, after it.
	var extras []string
	for name, v := range totals {
		if v > 0 && indexOf(order, name) < 0 {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	names = append(names, extras...)

	sort.SliceStable(names, func(i, j int) bool {
		return totals[names[i]] > totals[names[j]]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
