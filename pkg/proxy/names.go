package proxy

// ForwardedExports lists every export the extractor DLL must forward to
// the original Steam API library, in the order exports.h declares them.
var ForwardedExports = []string{
	"SteamAPI_GetHSteamPipe",
	"SteamAPI_GetHSteamUser",
	"SteamAPI_Init",
	"SteamAPI_InitSafe",
	"SteamAPI_IsSteamRunning",
	"SteamAPI_Shutdown",
	"SteamAPI_RunCallbacks",
	"SteamAPI_RestartAppIfNecessary",
	"SteamAPI_SetMiniDumpComment",
	"SteamAPI_WriteMiniDump",
	"SteamAPI_RegisterCallback",
	"SteamAPI_UnregisterCallback",
	"SteamAPI_RegisterCallResult",
	"SteamAPI_UnregisterCallResult",
	"SteamClient",
	"SteamUser",
	"SteamFriends",
	"SteamUtils",
	"SteamMasterServerUpdater",
	"SteamMatchmaking",
	"SteamMatchmakingServers",
	"SteamUserStats",
	"SteamApps",
	"SteamNetworking",
	"SteamRemoteStorage",
	"SteamScreenshots",
	"SteamGameServer",
	"SteamGameServerNetworking",
	"SteamGameServerUtils",
	"SteamGameServer_BSecure",
	"SteamGameServer_GetSteamID",
	"SteamGameServer_Init",
	"SteamGameServer_Shutdown",
	"SteamGameServer_RunCallbacks",
	"SteamGameServerStats",
}
