package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/receipt"
)

// HandleClaimComponent handles clicks on the shared claim message.
// Custom IDs are "claim:<action>:<sessionID>".
func (r *Receipt) HandleClaimComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, sessionID, ok := parseClaimCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	userID := interactionUserID(i)
	ctx := context.Background()

	var cmd receipt.Command
	switch {
	case strings.HasPrefix(action, "item"):
		values := i.MessageComponentData().Values
		if len(values) == 0 {
			return
		}
		itemID, err := parseItemID(values[0])
		if err != nil {
			return
		}
		cmd = receipt.Command{Kind: receipt.CmdSelectItem, ItemID: itemID}
	case action == "inc", action == "dec", action == "step":
		// The adjustment buttons are shared across participants; each one
		// acts on the clicking user's focused item.
		itemID, ok := r.focusedItem(sessionID, userID)
		if !ok {
			respondEphemeral(s, i, "先に品目を選択してください")
			return
		}
		kind := receipt.CmdIncrement
		switch action {
		case "dec":
			kind = receipt.CmdDecrement
		case "step":
			kind = receipt.CmdToggleStep
		}
		cmd = receipt.Command{Kind: kind, ItemID: itemID}
	case action == "fin":
		cmd = receipt.Command{Kind: receipt.CmdFinish}
	default:
		return
	}

	view, err := r.svc.Apply(ctx, sessionID, userID, cmd)
	if err != nil {
		respondEphemeral(s, i, claimErrorMessage(err))
		return
	}

	if action == "fin" {
		if r.announceSettlement(s, i.ChannelID, sessionID) {
			respondEphemeral(s, i, "確定しました")
		} else {
			respondEphemeral(s, i, "確定しました。全員の確定を待っています")
		}
		return
	}
	respondEphemeral(s, i, renderView(view))
}

// parseClaimCustomID splits "claim:<action>:<sessionID>". Chunked select
// menus carry actions like "item0", "item1".
func parseClaimCustomID(customID string) (action, sessionID string, ok bool) {
	parts := strings.SplitN(customID, ":", 3)
	if len(parts) != 3 || parts[0] != "claim" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// focusedItem returns the item the participant currently has expanded.
func (r *Receipt) focusedItem(sessionID, userID string) (int, bool) {
	view, err := r.svc.View(sessionID, userID)
	if err != nil || view.FocusedItemID == receipt.NoFocus {
		return 0, false
	}
	return view.FocusedItemID, true
}

// announceSettlement posts the summary and DMs each participant their share.
// Returns false while the session is still open.
func (r *Receipt) announceSettlement(s *discordgo.Session, channelID, sessionID string) bool {
	res, ok, err := r.svc.Settlement(sessionID)
	if err != nil || !ok {
		return false
	}

	if _, err := s.ChannelMessageSend(channelID, res.Summary()); err != nil {
		log.Printf("Failed to post settlement to channel %s: %v", channelID, err)
	}

	for _, debt := range res.Debts {
		dm, err := s.UserChannelCreate(debt.ParticipantID)
		if err != nil {
			log.Printf("Failed to open DM with %s: %v", debt.ParticipantID, err)
			continue
		}
		msg := fmt.Sprintf("お疲れさまです！今回のお会計、あなたの分は %s 円です", debt.Amount.Display())
		if _, err := s.ChannelMessageSend(dm.ID, msg); err != nil {
			log.Printf("Failed to DM %s: %v", debt.ParticipantID, err)
		}
	}
	return true
}

func claimIntro(voters int) string {
	return fmt.Sprintf("%d人で割り勘します。下のメニューから品目を選んで、自分の取り分を登録してください", voters)
}

// selectPageSize is Discord's option limit per select menu. A catalog can
// exceed it, so the items are split over several menus.
const selectPageSize = 25

// claimComponents builds the shared claim UI: one or more item select menus
// plus the operation buttons.
func claimComponents(svc *receipt.Service, sessionID string) []discordgo.MessageComponent {
	items, err := svc.Items(sessionID)
	if err != nil {
		log.Printf("Failed to build claim components for %s: %v", sessionID, err)
	}

	var rows []discordgo.MessageComponent
	for start := 0; start < len(items); start += selectPageSize {
		end := start + selectPageSize
		if end > len(items) {
			end = len(items)
		}
		options := make([]discordgo.SelectMenuOption, 0, end-start)
		for _, item := range items[start:end] {
			options = append(options, discordgo.SelectMenuOption{
				Label:       truncateLabel(item.Name),
				Value:       fmt.Sprintf("%d", item.ID),
				Description: item.UnitPrice.Display() + " 円",
			})
		}
		placeholder := "品目を選択"
		if len(items) > selectPageSize {
			placeholder = fmt.Sprintf("品目を選択 (%d〜%d)", start+1, end)
		}
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    fmt.Sprintf("claim:item%d:%s", start/selectPageSize, sessionID),
					Placeholder: placeholder,
					Options:     options,
				},
			},
		})
	}

	rows = append(rows, discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "＋", Style: discordgo.PrimaryButton, CustomID: "claim:inc:" + sessionID},
			discordgo.Button{Label: "－", Style: discordgo.PrimaryButton, CustomID: "claim:dec:" + sessionID},
			discordgo.Button{Label: "刻み切替", Style: discordgo.SecondaryButton, CustomID: "claim:step:" + sessionID},
			discordgo.Button{Label: "確定", Style: discordgo.SuccessButton, CustomID: "claim:fin:" + sessionID},
		},
	})
	return rows
}

func renderView(view receipt.ParticipantView) string {
	var b strings.Builder
	b.WriteString("あなたの取り分:\n")
	for _, iv := range view.Items {
		marker := "  "
		if iv.Focused {
			marker = "▶ "
		}
		fmt.Fprintf(&b, "%s%d. %s (%s 円): 自分 %s / 全体 %s / 残り %s%s\n",
			marker, iv.Item.ID, iv.Item.Name, iv.Item.UnitPrice.Display(),
			iv.Own.Display(), iv.Claimed.Display(), iv.Remaining.Display(),
			stepSuffix(iv))
	}
	if view.Finished {
		b.WriteString("状態: 確定済み")
	} else {
		b.WriteString("状態: 未確定")
	}
	return b.String()
}

func stepSuffix(iv receipt.ItemView) string {
	if iv.Mode == receipt.StepCustom {
		return " [細分]"
	}
	return ""
}

func parseItemID(value string) (int, error) {
	var id int
	_, err := fmt.Sscanf(value, "%d", &id)
	return id, err
}

func truncateLabel(name string) string {
	const max = 100
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max-1]) + "…"
}

func claimErrorMessage(err error) string {
	switch {
	case errors.Is(err, receipt.ErrUnknownSession):
		return "セッションが見つかりません"
	case errors.Is(err, receipt.ErrSessionClosed):
		return "このレシートは既に精算済みです"
	case errors.Is(err, receipt.ErrAwaitingVoters):
		return "先に人数を設定してください"
	case errors.Is(err, receipt.ErrUnknownParticipant):
		return "参加枠が埋まっています"
	case errors.Is(err, receipt.ErrUnknownItem):
		return "先に品目を選択してください"
	default:
		return "操作に失敗しました。もう一度お試しください"
	}
}
