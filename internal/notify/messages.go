package notify

import (
	"fmt"
	"time"
)

// Client method names pushed over the live channel. The mobile client
// switches on these verbatim.
const (
	MethodUpdateGameLobbyList = "UpdateGameLobbyList"
	MethodUpdateNotifications = "UpdateNotifications"
	MethodUpdateScoreboard    = "UpdateScoreboard"
	MethodUpdatePhotoUploaded = "UpdatePhotoUploaded"
	MethodGameCompleted       = "GameCompleted"
	MethodLobbyEnded          = "LobbyEnded"
	MethodAmmoReplenished     = "AmmoReplenished"
	MethodGameNowPlaying      = "GameNowPlaying"
	MethodGameStarting        = "GameStarting"
	MethodPlayerDisabled      = "PlayerDisabled"
	MethodPlayerReEnabled     = "PlayerReEnabled"
	MethodPlayerEliminated    = "PlayerEliminated"
)

// Off-line message subjects.
const (
	subjectPlayerJoined   = "New Player Joined Your Game"
	subjectPlayerLeft     = "A Player Left Your Game"
	subjectPhotoUploaded  = "New Photo Submitted"
	subjectGameCompleted  = "Game Completed"
	subjectLobbyEnded     = "Lobby Ended"
	subjectGameNowPlaying = "Game Now Playing"
	subjectGameStarting   = "Game Starting Soon"
	subjectAmmo           = "Ammo Replenished"
	subjectVotingComplete = "Voting Complete"
	subjectDisabled       = "You Have Been Disabled"
	subjectReEnabled      = "You Have Been Re-enabled"
)

func joinedText(nickname string) string {
	return fmt.Sprintf("%s has joined your game of CamTag.", nickname)
}

func leftText(nickname string) string {
	return fmt.Sprintf("%s has left your game of CamTag.", nickname)
}

const uploadedText = "A new photo has been uploaded in your game of CamTag. Cast your vote before time runs out!"

const completedText = "Your game of CamTag has been completed. Thanks for playing!"

const completedInsufficientText = "Your game of CamTag has been completed because there is no longer enough players in your game. Thanks for playing!"

const lobbyEndedText = "Your game of CamTag has ended because the host left the lobby."

const nowPlayingText = "Your game of CamTag is now playing. Go tag other players!"

func startingText(at time.Time) string {
	return fmt.Sprintf("Your game of CamTag will begin at: %s", at.Format(time.Kitchen))
}

const ammoText = "Your ammo has now been replenished, go get em!"

func disabledText(minutes int) string {
	return fmt.Sprintf("You have been disabled for %d minutes for taking a photo outside of the zone.", minutes)
}

const reenabledText = "You have been re-enabled, go get em!"

// Voting outcome texts, from the shooter's and the subject's side.

func eliminatedOfText(of string) string {
	return fmt.Sprintf("You have eliminated %s.", of)
}

func eliminatedByText(by string) string {
	return fmt.Sprintf("You have been eliminated by %s.", by)
}

func taggedOfText(of string) string {
	return fmt.Sprintf("You have successfully tagged %s.", of)
}

func taggedByText(by string) string {
	return fmt.Sprintf("You have been tagged by %s.", by)
}

func tagFailedOfText(of string) string {
	return fmt.Sprintf("You did not successfully tag %s because other players voted \"No\" on the photo you submitted.", of)
}

func tagFailedByText(by string) string {
	return fmt.Sprintf("%s failed to tag you.", by)
}
